package vm

import "github.com/reifydb/reifydb/internal/diagnostic"

func expectBool(v OperandValue, fragment string) (bool, error) {
	if v.Kind != OperandScalar || v.Scalar.IsUndefined() {
		return false, diagnostic.ErrExpectedBoolean.WithFragment(fragment, "operand")
	}
	return v.Scalar.Bool(), nil
}

func expectInt(v OperandValue, fragment string) (int64, error) {
	if v.Kind != OperandScalar {
		return 0, diagnostic.ErrExpectedInteger.WithFragment(fragment, "operand")
	}
	return v.Scalar.Int(), nil
}

func expectColList(v OperandValue, fragment string) ([]string, error) {
	if v.Kind != OperandColList {
		return nil, diagnostic.ErrExpectedColumnList.WithFragment(fragment, "operand")
	}
	return v.ColList, nil
}

func expectPipeline(v OperandValue, fragment string) (Pipeline, error) {
	if v.Kind != OperandPipelineRef || v.Pipeline == nil {
		return nil, diagnostic.ErrExpectedPipeline.WithFragment(fragment, "operand")
	}
	return v.Pipeline, nil
}

func expectSortSpec(v OperandValue, fragment string) (int, error) {
	if v.Kind != OperandSortSpecRef {
		return 0, diagnostic.ErrExpectedSortSpec.WithFragment(fragment, "operand")
	}
	return v.SortSpec, nil
}

func expectExtSpec(v OperandValue, fragment string) (int, error) {
	if v.Kind != OperandExtSpecRef {
		return 0, diagnostic.ErrExpectedExtensionSpec.WithFragment(fragment, "operand")
	}
	return v.ExtSpec, nil
}
