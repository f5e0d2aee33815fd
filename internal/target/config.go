package target

import (
	"fmt"

	"github.com/joeycumines/castrec/internal/config"
	"github.com/joeycumines/castrec/internal/script"
)

// ApplyConfig merges the [target NAME] sections of cfg into r. A section
// naming an existing target overrides only the fields it sets; any action,
// type or repeat line replaces the whole script. New targets default to the
// default size and an empty script.
func ApplyConfig(r *Registry, cfg *config.Config) error {
	for _, sec := range cfg.Targets {
		t, err := fromSection(r, sec)
		if err != nil {
			return err
		}
		if err := r.Add(t); err != nil {
			return fmt.Errorf("config line %d: %w", sec.Line, err)
		}
	}
	return nil
}

func fromSection(r *Registry, sec *config.TargetSection) (Target, error) {
	t, ok := r.Get(sec.Name)
	if !ok {
		t = Target{Name: sec.Name, Size: DefaultSize}
	}

	var actions []script.Action
	scripted := false
	for _, o := range sec.Options {
		var err error
		switch o.Key {
		case "command":
			t.Source, err = ParseGoCommand(o.Value)
		case "source":
			t.Source.Path = o.Value
		case "tags":
			t.Source.Tags = SplitTags(o.Value)
		case "size":
			t.Size, err = ParseSize(o.Value)
		case "action":
			var a script.Action
			if a, err = script.ParseAction(o.Value); err == nil {
				actions = append(actions, a)
			}
			scripted = true
		case "type":
			var as []script.Action
			if as, err = script.ParseType(o.Value); err == nil {
				actions = append(actions, as...)
			}
			scripted = true
		case "repeat":
			var as []script.Action
			if as, err = script.ParseRepeat(o.Value); err == nil {
				actions = append(actions, as...)
			}
			scripted = true
		default:
			// unknown keys are reported as config warnings
		}
		if err != nil {
			return Target{}, fmt.Errorf("target %s, config line %d: %w", sec.Name, o.Line, err)
		}
	}

	if scripted {
		s, err := script.New(actions...)
		if err != nil {
			return Target{}, fmt.Errorf("target %s: %w", sec.Name, err)
		}
		t.Script = s
	}
	return t, nil
}
