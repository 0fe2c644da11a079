package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"portalgrades/internal/portal"

	"github.com/stretchr/testify/require"
)

type nopEngine struct{ name string }

func (nopEngine) Login(context.Context, portal.Session, portal.LoginRequest) error { return nil }
func (nopEngine) FetchGrades(context.Context, portal.Session) (portal.RawGradePayload, error) {
	return portal.Snapshot{}, nil
}
func (nopEngine) Logout(context.Context, portal.Session) {}

func factory(name string) portal.Factory {
	return func() portal.Engine { return nopEngine{name: name} }
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("ALAC", factory("alac")))

	engine, err := r.Resolve("alac")
	require.NoError(t, err)
	require.Equal(t, "alac", engine.(nopEngine).name)

	_, err = r.Resolve(" Alac ")
	require.NoError(t, err)
}

func TestDuplicateRegistration(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("gilbert", factory("a")))

	err := r.Register("Gilbert", factory("b"))
	require.True(t, errors.Is(err, ErrDuplicateEngine))

	require.Panics(t, func() {
		r.MustRegister("gilbert", factory("c"))
	})

	engine, err := r.Resolve("gilbert")
	require.NoError(t, err)
	require.Equal(t, "a", engine.(nopEngine).name)
}

func TestUnknownPortal(t *testing.T) {
	r := New()
	_, err := r.Resolve("missing")

	var unknown *portal.UnknownPortalError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, "missing", unknown.Key)
}

func TestFreezeAndKeys(t *testing.T) {
	r := New()
	r.MustRegister("studentvue_husd", factory("x"))
	r.MustRegister("alac", factory("y"))
	r.Freeze()

	require.True(t, errors.Is(r.Register("ccsd", factory("z")), ErrFrozen))
	require.Equal(t, []string{"alac", "studentvue_husd"}, r.Keys())
}

func TestConcurrentResolve(t *testing.T) {
	r := New()
	r.MustRegister("alac", factory("alac"))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve("alac")
			require.NoError(t, err)
		}()
	}
	wg.Wait()
}
