package password

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// fastArgon keeps tests quick; production defaults are far more expensive.
var fastArgon = Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1}

func newBcrypt(t *testing.T) *Bcrypt {
	t.Helper()
	b, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	return b
}

func TestHashers_RoundTrip(t *testing.T) {
	ctx := context.Background()
	hashers := map[string]Hasher{
		"argon2id": NewArgon2id(fastArgon),
		"bcrypt":   newBcrypt(t),
	}

	for name, h := range hashers {
		t.Run(name, func(t *testing.T) {
			hash, err := h.Hash(ctx, "correct horse")
			if err != nil {
				t.Fatalf("Hash: %v", err)
			}
			if strings.Contains(hash, "correct horse") {
				t.Fatal("hash contains plaintext")
			}

			ok, err := h.Verify(ctx, "correct horse", hash)
			if err != nil || !ok {
				t.Errorf("Verify(correct) = %v, %v", ok, err)
			}

			ok, err = h.Verify(ctx, "wrong horse", hash)
			if err != nil || ok {
				t.Errorf("Verify(wrong) = %v, %v; want false, nil", ok, err)
			}
		})
	}
}

func TestHashers_FreshSaltPerCall(t *testing.T) {
	ctx := context.Background()
	for name, h := range map[string]Hasher{"argon2id": NewArgon2id(fastArgon), "bcrypt": newBcrypt(t)} {
		a, _ := h.Hash(ctx, "same input")
		b, _ := h.Hash(ctx, "same input")
		if a == b {
			t.Errorf("%s: two hashes of the same input are identical", name)
		}
	}
}

func TestArgon2id_Format(t *testing.T) {
	hash, err := NewArgon2id(fastArgon).Hash(context.Background(), "pw")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$") {
		t.Errorf("hash = %q, unexpected prefix", hash)
	}
	if n := len(strings.Split(hash, "$")); n != 6 {
		t.Errorf("hash has %d segments, want 6", n)
	}
}

func TestArgon2id_Malformed(t *testing.T) {
	a := NewArgon2id(fastArgon)
	for _, hash := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=64,t=1,p=1$onlysalt",
		"$argon2id$v=18$m=64,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$a2V5",
		"$argon2i$v=19$m=64,t=1,p=1$c2FsdA$a2V5",
	} {
		ok, err := a.Verify(context.Background(), "pw", hash)
		if ok || !errors.Is(err, ErrMalformedHash) {
			t.Errorf("Verify(%q) = %v, %v; want false, ErrMalformedHash", hash, ok, err)
		}
	}
}

func TestArgon2id_NeedsRehash(t *testing.T) {
	ctx := context.Background()
	weak := NewArgon2id(fastArgon)
	strong := NewArgon2id(Argon2Params{Memory: 128, Iterations: 2, Parallelism: 1})

	hash, _ := weak.Hash(ctx, "pw")
	if weak.NeedsRehash(hash) {
		t.Error("hash made with current params should not need rehash")
	}
	if !strong.NeedsRehash(hash) {
		t.Error("hash made with weaker params should need rehash")
	}
}

func TestBcrypt_RejectsLongInput(t *testing.T) {
	b := newBcrypt(t)
	long := strings.Repeat("a", 73)

	if _, err := b.Hash(context.Background(), long); !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("Hash(73 bytes) err = %v, want ErrPasswordTooLong", err)
	}

	// A 72-byte prefix must not match a longer input.
	hash, _ := b.Hash(context.Background(), long[:72])
	if ok, err := b.Verify(context.Background(), long, hash); ok || err != nil {
		t.Errorf("Verify(73 bytes) = %v, %v; want false, nil", ok, err)
	}
}

func TestNewBcrypt_CostRange(t *testing.T) {
	if _, err := NewBcrypt(bcrypt.MaxCost + 1); err == nil {
		t.Error("expected error for cost above max")
	}
	b, err := NewBcrypt(0)
	if err != nil || b.cost != bcrypt.DefaultCost {
		t.Errorf("NewBcrypt(0) = %+v, %v", b, err)
	}
}

func TestHashers_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, h := range map[string]Hasher{"argon2id": NewArgon2id(fastArgon), "bcrypt": newBcrypt(t)} {
		if _, err := h.Hash(ctx, "pw"); !errors.Is(err, context.Canceled) {
			t.Errorf("%s: Hash err = %v, want context.Canceled", name, err)
		}
	}
}

func TestMulti_VerifiesBothAlgorithms(t *testing.T) {
	ctx := context.Background()
	argon := NewArgon2id(fastArgon)
	bc := newBcrypt(t)

	legacy, _ := bc.Hash(ctx, "old password")
	m := NewMulti(argon, bc)

	ok, err := m.Verify(ctx, "old password", legacy)
	if err != nil || !ok {
		t.Fatalf("Verify(bcrypt hash) = %v, %v", ok, err)
	}
	if !m.NeedsRehash(legacy) {
		t.Error("bcrypt hash should need rehash when argon2id is primary")
	}

	fresh, _ := m.Hash(ctx, "old password")
	if !strings.HasPrefix(fresh, argon2idPrefix) {
		t.Errorf("primary hash = %q, want argon2id", fresh)
	}
	if m.NeedsRehash(fresh) {
		t.Error("primary hash should not need rehash")
	}

	if _, err := m.Verify(ctx, "pw", "$1$md5$whatever"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("unknown prefix err = %v, want ErrUnknownAlgorithm", err)
	}
}

func TestNew(t *testing.T) {
	p, err := New(Options{Algorithm: AlgorithmBcrypt, BcryptCost: bcrypt.MinCost, Argon2: fastArgon, Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Workers() != 2 {
		t.Errorf("Workers = %d, want 2", p.Workers())
	}
	hash, err := p.Hash(context.Background(), "pw")
	if err != nil || !isBcrypt(hash) {
		t.Errorf("Hash = %q, %v; want bcrypt", hash, err)
	}

	if _, err := New(Options{Algorithm: "md5"}); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("New(md5) err = %v, want ErrUnknownAlgorithm", err)
	}
}

// slowHasher counts concurrent calls.
type slowHasher struct {
	active, peak atomic.Int32
}

func (s *slowHasher) enter() {
	n := s.active.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	s.active.Add(-1)
}

func (s *slowHasher) Hash(context.Context, string) (string, error) {
	s.enter()
	return "h", nil
}

func (s *slowHasher) Verify(context.Context, string, string) (bool, error) {
	s.enter()
	return true, nil
}

func TestPool_BoundsConcurrency(t *testing.T) {
	for _, workers := range []int{1, 3} {
		inner := &slowHasher{}
		p := NewPool(inner, workers)

		var wg sync.WaitGroup
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := p.Hash(context.Background(), "pw"); err != nil {
					t.Errorf("Hash: %v", err)
				}
			}()
		}
		wg.Wait()

		if peak := inner.peak.Load(); int(peak) > workers {
			t.Errorf("workers=%d: peak concurrency %d", workers, peak)
		}
	}
}

// blockingHasher holds its worker until released.
type blockingHasher struct{ release chan struct{} }

func (b *blockingHasher) Hash(context.Context, string) (string, error) {
	<-b.release
	return "h", nil
}

func (b *blockingHasher) Verify(context.Context, string, string) (bool, error) {
	<-b.release
	return true, nil
}

func TestPool_WaitHonoursContext(t *testing.T) {
	inner := &blockingHasher{release: make(chan struct{})}
	p := NewPool(inner, 1)

	done := make(chan struct{})
	go func() {
		p.Hash(context.Background(), "pw")
		close(done)
	}()

	// Give the first call time to take the only worker.
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Verify(ctx, "pw", "h"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Verify err = %v, want DeadlineExceeded", err)
	}

	close(inner.release)
	<-done
}

func TestPool_NeedsRehashDelegates(t *testing.T) {
	ctx := context.Background()
	argon := NewArgon2id(fastArgon)
	bc := newBcrypt(t)
	p := NewPool(NewMulti(argon, bc), 1)

	legacy, _ := bc.Hash(ctx, "pw")
	if !p.NeedsRehash(legacy) {
		t.Error("expected rehash for bcrypt hash")
	}
	if NewPool(&slowHasher{}, 1).NeedsRehash("x") {
		t.Error("hasher without Rehasher should never need rehash")
	}
}
