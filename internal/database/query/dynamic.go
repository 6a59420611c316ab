package query

import (
	"context"
	"strings"
	"unicode"

	"github.com/alem-hub/schoolportal/internal/domain/shared"
)

// DynamicWhere handles finders such as "whereNameAndCohort": the part after
// "where" is split on "And" followed by an upper-case letter, and each segment
// becomes a Where bound to the positional argument at the same index.
func (b *Builder) DynamicWhere(method string, args ...any) (*Builder, error) {
	finder, _ := dynamicFinder(method)

	segments := splitFinder(finder)
	if len(segments) == 0 {
		return b, shared.InvalidArgument("query", "DynamicWhere", "no columns in %q", method)
	}
	if len(args) < len(segments) {
		return b, shared.InvalidArgument("query", "DynamicWhere",
			"%s expects %d arguments, got %d", method, len(segments), len(args))
	}

	for i, column := range segments {
		b.Where(column, args[i])
	}
	return b, nil
}

// dynamicFinder strips a leading "where" or "Where" and reports whether any
// column part is left.
func dynamicFinder(method string) (string, bool) {
	for _, prefix := range []string{"where", "Where"} {
		if strings.HasPrefix(method, prefix) {
			finder := method[len(prefix):]
			return finder, finder != ""
		}
	}
	return method, false
}

// splitFinder splits "NameAndCohortId" into ["Name", "CohortId"]. "And" only
// separates when it is followed by an upper-case letter, so "Band" and
// "Andrew" stay intact.
func splitFinder(finder string) []string {
	var segments []string
	start := 0
	for i := 1; i+3 < len(finder); i++ {
		if finder[i:i+3] == "And" && unicode.IsUpper(rune(finder[i+3])) {
			segments = append(segments, finder[start:i])
			start = i + 3
			i += 2
		}
	}
	if start < len(finder) {
		segments = append(segments, finder[start:])
	}
	return segments
}

// Call dispatches a method by name. It is the explicit replacement for magic
// method forwarding: known methods run, "where*" finders are parsed and
// anything else fails with an UndefinedMethodError.
func (b *Builder) Call(ctx context.Context, method string, args ...any) (any, error) {
	switch method {
	case "from":
		endpoint, err := stringArg(method, args, 0)
		if err != nil {
			return nil, err
		}
		return b.From(endpoint), nil

	case "where":
		column, err := stringArg(method, args, 0)
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, shared.InvalidArgument("query", "Call", "where expects a column and a value")
		}
		return b.Where(column, args[1]), nil

	case "get":
		return b.Get(ctx)

	case "insert":
		records, err := recordArgs(args)
		if err != nil {
			return nil, err
		}
		return b.Insert(ctx, records...)

	case "update":
		if len(args) != 1 {
			return nil, shared.InvalidArgument("query", "Call", "update expects one map of values")
		}
		values, ok := args[0].(map[string]any)
		if !ok {
			return nil, shared.InvalidArgument("query", "Call", "update expects map[string]any, got %T", args[0])
		}
		return b.Update(ctx, values)

	case "getBindings":
		return b.GetBindings(), nil

	case "getRawBindings":
		return b.GetRawBindings(), nil

	case "addBinding", "setBindings":
		if len(args) == 0 {
			return nil, shared.InvalidArgument("query", "Call", "%s expects a value", method)
		}
		group := BindingWhere
		if len(args) > 1 {
			g, err := stringArg(method, args, 1)
			if err != nil {
				return nil, err
			}
			group = g
		}
		var err error
		if method == "addBinding" {
			err = b.AddBinding(args[0], group)
		} else {
			values, ok := args[0].([]any)
			if !ok {
				values = []any{args[0]}
			}
			err = b.SetBindings(values, group)
		}
		if err != nil {
			return nil, err
		}
		return b, nil

	case "clone":
		return b.Clone(), nil
	}

	if _, ok := dynamicFinder(method); ok {
		return b.DynamicWhere(method, args...)
	}

	return nil, &shared.UndefinedMethodError{Type: "query.Builder", Method: method}
}

func stringArg(method string, args []any, i int) (string, error) {
	if len(args) <= i {
		return "", shared.InvalidArgument("query", "Call", "%s: missing argument %d", method, i+1)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", shared.InvalidArgument("query", "Call", "%s: argument %d must be a string, got %T", method, i+1, args[i])
	}
	return s, nil
}

func recordArgs(args []any) ([]map[string]any, error) {
	records := make([]map[string]any, 0, len(args))
	for _, arg := range args {
		switch v := arg.(type) {
		case map[string]any:
			records = append(records, v)
		case []map[string]any:
			records = append(records, v...)
		case []any:
			for _, item := range v {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, shared.InvalidArgument("query", "Call", "insert: record must be a map, got %T", item)
				}
				records = append(records, m)
			}
		default:
			return nil, shared.InvalidArgument("query", "Call", "insert: record must be a map, got %T", arg)
		}
	}
	return records, nil
}
