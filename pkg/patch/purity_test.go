package patch

import (
	"reflect"
	"testing"

	"worldcore/testutil"
)

// TestPatchPackageImportsOnlyStdlib keeps the data model dependency-free so
// every consumer, including external tooling, can decode patches without
// pulling in the kernel's stack.
func TestPatchPackageImportsOnlyStdlib(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.NonStdlibImportForbidden,
		"patch is a plain-data package")
}

// TestPayloadTypesArePlainData walks every payload struct reachable from
// Patch and rejects fields that cannot round-trip through JSON (funcs,
// channels, unsafe pointers). The patch stream is a wire format; behavior
// never rides on it.
func TestPayloadTypesArePlainData(t *testing.T) {
	roots := []any{
		Patch{},
		Transaction{},
		EntityPayload{},
		ComponentPayload{},
		LayerPayload{},
		AssetPayload{},
		HierarchyPayload{},
		CameraPayload{},
	}
	seen := make(map[reflect.Type]struct{})
	for _, root := range roots {
		assertPlainData(t, reflect.TypeOf(root), seen, "")
	}
}

func assertPlainData(t *testing.T, typ reflect.Type, seen map[reflect.Type]struct{}, path string) {
	t.Helper()
	if _, ok := seen[typ]; ok {
		return
	}
	seen[typ] = struct{}{}

	switch typ.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		t.Errorf("field %s has non-data kind %s", path, typ.Kind())
	case reflect.Ptr, reflect.Slice, reflect.Array:
		assertPlainData(t, typ.Elem(), seen, path)
	case reflect.Map:
		assertPlainData(t, typ.Key(), seen, path+"[key]")
		assertPlainData(t, typ.Elem(), seen, path+"[value]")
	case reflect.Struct:
		for i := 0; i < typ.NumField(); i++ {
			f := typ.Field(i)
			assertPlainData(t, f.Type, seen, path+"."+f.Name)
		}
	case reflect.Interface:
		// any-typed descriptor values are constrained at validation time,
		// not by the static type system.
	default:
	}
}
