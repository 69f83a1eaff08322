package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewWriteFile()))
	require.NoError(t, r.Register(NewReadFile()))

	d, err := r.Get("write_file")
	require.NoError(t, err)
	assert.Equal(t, "write_file", d.Name())
	assert.Equal(t, 2, r.Len())
}

func TestRegistryDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewWriteFile()))

	err := r.Register(NewWriteFile())
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, ErrDuplicateName, terr.Kind)
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("nope")
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, ErrNotFound, terr.Kind)
}

func TestRegistryFreezeRejectsRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewWriteFile()))

	r.Freeze()
	assert.True(t, r.Frozen())

	err := r.Register(NewReadFile())
	require.Error(t, err)

	// Freeze is idempotent and reads keep working.
	r.Freeze()
	_, err = r.Get("write_file")
	assert.NoError(t, err)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDeclarationsKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewGlob()))
	require.NoError(t, r.Register(NewWriteFile()))
	require.NoError(t, r.Register(NewListDir()))

	decls := r.Declarations()
	require.Len(t, decls, 3)
	assert.Equal(t, "glob", decls[0].Name)
	assert.Equal(t, "write_file", decls[1].Name)
	assert.Equal(t, "list_dir", decls[2].Name)
	assert.Equal(t, []string{"glob", "write_file", "list_dir"}, r.Names())
}
