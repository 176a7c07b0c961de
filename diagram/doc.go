// Package diagram defines the diagram spec model and the pure helpers that
// operate on it.
//
// A Spec is the JSON document stored by the cache and carried by the codec:
// nodes, edges and groups plus a layout direction. The package provides:
//
//   - Optimize, which shrinks a spec before compression by stripping
//     default values and rounding positions.
//   - Complexity, which classifies a spec by its element count.
//   - Validator, the capability used by the codec to check and repair
//     decoded specs. SchemaValidator checks documents against an embedded
//     CUE schema and drops dangling references.
//
// # Validation
//
//	v, err := diagram.NewSchemaValidator()
//	if err != nil {
//	    return err
//	}
//	repaired, err := v.Validate(ctx, raw, spec)
//	var se *diagram.SchemaError
//	if errors.As(err, &se) {
//	    // repaired is still usable; se.Issues lists what was wrong.
//	}
package diagram
