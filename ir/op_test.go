package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOp_Category(t *testing.T) {
	counts := map[Category]int{}
	for _, op := range Ops() {
		c := op.Category()
		require.NotEqual(t, CategoryInvalid, c, op.String())
		counts[c]++
	}
	require.Equal(t, map[Category]int{
		CategoryConst:  6,
		CategoryMove:   2,
		CategoryBinary: 20,
		CategoryBranch: 2,
		CategoryCall:   1,
		CategoryReturn: 1,
	}, counts)

	require.Equal(t, CategoryInvalid, OpInvalid.Category())
	require.Equal(t, CategoryInvalid, opEnd.Category())
}

func TestOp_String(t *testing.T) {
	for _, op := range Ops() {
		parsed, ok := ParseOp(op.String())
		require.True(t, ok, op.String())
		require.Equal(t, op, parsed)
	}
	_, ok := ParseOp("invalid")
	require.False(t, ok)
	require.Equal(t, "Op(200)", Op(200).String())
}

func TestOp_ResultType(t *testing.T) {
	for _, tc := range []struct {
		op  Op
		exp Type
	}{
		{op: OpIconst8, exp: TypeInt},
		{op: OpFconst32, exp: TypeFloat},
		{op: OpMov, exp: TypeInt},
		{op: OpMovf, exp: TypeFloat},
		{op: OpModi, exp: TypeInt},
		{op: OpModf, exp: TypeFloat},
		{op: OpLtf, exp: TypeInt},
		{op: OpEq, exp: TypeInt},
		{op: OpJmp, exp: TypeVoid},
		{op: OpRet, exp: TypeVoid},
	} {
		require.Equal(t, tc.exp, tc.op.ResultType(), tc.op.String())
	}
}

func TestOp_Predicates(t *testing.T) {
	require.True(t, OpAddi.IsCommutative())
	require.False(t, OpSubi.IsCommutative())
	require.True(t, OpEqf.IsComparison())
	require.False(t, OpAddf.IsComparison())
	require.True(t, OpBr.IsTerminator())
	require.False(t, OpCall.IsTerminator())
	require.Equal(t, Width16, OpIconst16.ConstWidth())
	require.Equal(t, Width64, OpFconst64.ConstWidth())
	require.Equal(t, Width(0), OpAddi.ConstWidth())
}
