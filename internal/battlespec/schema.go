package battlespec

import (
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// BuildSchema reflects the battle-spec document shape into a JSON schema so
// external tooling can validate spec files before running them.
func BuildSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	root := reflector.ReflectFromType(reflect.TypeOf(documentJSON{}))
	if root == nil {
		return nil, fmt.Errorf("failed to reflect document schema")
	}
	root.Version = jsonschema.Version
	root.Title = "Battle Spec"
	root.Description = "Deterministic battle description: roster, sequence policy, and scripted turn overrides."
	return root, nil
}
