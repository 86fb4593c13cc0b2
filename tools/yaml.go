package tools

import (
	"github.com/Comcast/keyframer/behavior"

	"gopkg.in/yaml.v2"
)

// LibraryYAML renders a library in the YAML behavior file syntax.
//
// Properties are written in a fixed order so that the output is
// stable.  Behaviors with problems are written as they were
// understood.
func LibraryYAML(lib *behavior.Library) ([]byte, error) {
	behaviors := make(yaml.MapSlice, 0, len(lib.Behaviors))
	for _, name := range lib.Names() {
		behaviors = append(behaviors, yaml.MapItem{
			Key:   name,
			Value: defYAML(lib.Behaviors[name]),
		})
	}
	return yaml.Marshal(behaviors)
}

func defYAML(d *behavior.Def) yaml.MapSlice {
	m := make(yaml.MapSlice, 0, 4)
	if d.Doc != "" {
		m = append(m, yaml.MapItem{Key: "doc", Value: d.Doc})
	}
	if d.Dofs != nil {
		m = append(m, yaml.MapItem{Key: "dofs", Value: d.Dofs})
	}
	if 0 < len(d.Parameters) {
		m = append(m, yaml.MapItem{Key: "parameters", Value: d.Parameters})
	}
	if d.Keyframes != nil {
		ks := make([]yaml.MapSlice, 0, len(d.Keyframes))
		for _, k := range d.Keyframes {
			if k == nil {
				continue
			}
			ks = append(ks, yaml.MapSlice{
				{Key: "pose", Value: k.Pose},
				{Key: "time", Value: k.Time},
				{Key: "ending_action", Value: k.EndingAction},
			})
		}
		m = append(m, yaml.MapItem{Key: "keyframes", Value: ks})
	}
	return m
}
