package api

import (
	"errors"
	"sync"
	"testing"

	"github.com/wesm/livefind/internal/livesearch"
)

func TestSessionCreateReservesSlot(t *testing.T) {
	factory, _ := newMockFactory()
	release := make(chan struct{})
	var mu sync.Mutex
	started := 0
	slow := func(pub livesearch.Publisher) (*livesearch.Coordinator, error) {
		mu.Lock()
		started++
		mu.Unlock()
		<-release
		return factory(pub)
	}
	m := newSessionManager(slow)
	m.max = 2
	t.Cleanup(m.closeAll)

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.create()
			errs <- err
		}()
	}

	// Every caller beyond the limit is refused while the first two are
	// still inside the factory.
	for i := 0; i < callers-2; i++ {
		if err := <-errs; !errors.Is(err, errTooManySessions) {
			t.Fatalf("create error = %v, want errTooManySessions", err)
		}
	}
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("create: %v", err)
		}
	}

	if n := m.count(); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	if started != 2 {
		t.Errorf("factory ran %d times, want 2", started)
	}
}

func TestSessionCreateFailureReleasesSlot(t *testing.T) {
	factory, _ := newMockFactory()
	boom := errors.New("boom")
	fail := true
	m := newSessionManager(func(pub livesearch.Publisher) (*livesearch.Coordinator, error) {
		if fail {
			return nil, boom
		}
		return factory(pub)
	})
	m.max = 1
	t.Cleanup(m.closeAll)

	if _, err := m.create(); !errors.Is(err, boom) {
		t.Fatalf("create error = %v, want boom", err)
	}
	fail = false
	if _, err := m.create(); err != nil {
		t.Fatalf("create after failure: %v", err)
	}
	if m.pending != 0 {
		t.Errorf("pending = %d, want 0", m.pending)
	}
}
