package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalsUnbound(t *testing.T) {
	sig := InputSignature{Items: []InputItemConfig{
		{Name: "x", Bucket: BucketGlobal, Required: true},
		{Name: "y", Bucket: BucketGlobal, Required: false},
		{Name: "z", Bucket: BucketArg, Required: true},
	}}
	missing := sig.GlobalsUnbound(map[string]bool{"y": true})
	assert.Equal(t, []string{"x"}, missing)
}

func TestCheckRequiredMissing(t *testing.T) {
	sig := InputSignature{Items: []InputItemConfig{
		{Name: "x", Bucket: BucketGlobal, Required: true},
	}}
	err := sig.Check(map[InputBucket]map[string]SV{})
	require.Error(t, err)
	var kerr *KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, ErrSignature, kerr.Code)
}

func TestCheckKindMismatch(t *testing.T) {
	sig := InputSignature{Items: []InputItemConfig{
		{Name: "x", Bucket: BucketGlobal, Required: true, Kind: SVInt},
	}}
	err := sig.Check(map[InputBucket]map[string]SV{
		BucketGlobal: {"x": String("not an int")},
	})
	require.Error(t, err)
}

func TestCheckOptionalMissingOK(t *testing.T) {
	sig := InputSignature{Items: []InputItemConfig{
		{Name: "x", Bucket: BucketGlobal, Required: false},
	}}
	err := sig.Check(map[InputBucket]map[string]SV{})
	assert.NoError(t, err)
}

type validatable struct {
	Name string `validate:"required"`
}

func TestCheckStruct(t *testing.T) {
	assert.Error(t, CheckStruct(validatable{}))
	assert.NoError(t, CheckStruct(validatable{Name: "ok"}))
}
