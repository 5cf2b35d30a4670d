package recipe

// Clone returns a deep copy of r. Patches are always applied to clones.
func (r *Recipe) Clone() *Recipe {
	if r == nil {
		return nil
	}
	out := &Recipe{
		Domain:   r.Domain,
		Flow:     r.Flow,
		Version:  r.Version,
		Workflow: r.Workflow.clone(),
	}
	if r.Actions != nil {
		out.Actions = make(map[string]ActionEntry, len(r.Actions))
		for k, a := range r.Actions {
			a.Preferred = a.Preferred.Clone()
			out.Actions[k] = a
		}
	}
	if r.Selectors != nil {
		out.Selectors = make(map[string]SelectorEntry, len(r.Selectors))
		for k, s := range r.Selectors {
			out.Selectors[k] = s.clone()
		}
	}
	if r.Policies != nil {
		out.Policies = make(map[string]Policy, len(r.Policies))
		for k, p := range r.Policies {
			out.Policies[k] = p.clone()
		}
	}
	if r.Fingerprints != nil {
		out.Fingerprints = make(map[string]Fingerprint, len(r.Fingerprints))
		for k, f := range r.Fingerprints {
			out.Fingerprints[k] = Fingerprint{
				MustText:      cloneStrings(f.MustText),
				MustSelectors: cloneStrings(f.MustSelectors),
				URLContains:   f.URLContains,
			}
		}
	}
	return out
}

func (w Workflow) clone() Workflow {
	out := Workflow{ID: w.ID, Version: w.Version, Vars: cloneMap(w.Vars)}
	if w.Steps != nil {
		out.Steps = make([]WorkflowStep, len(w.Steps))
		for i, s := range w.Steps {
			s.Args = cloneMap(s.Args)
			if s.Expect != nil {
				s.Expect = append([]Expectation(nil), s.Expect...)
			}
			out.Steps[i] = s
		}
	}
	return out
}

func (s SelectorEntry) clone() SelectorEntry {
	s.Fallbacks = cloneStrings(s.Fallbacks)
	return s
}

func (p Policy) clone() Policy {
	out := Policy{Pick: p.Pick, TieBreak: cloneStrings(p.TieBreak)}
	if p.Hard != nil {
		out.Hard = make([]PolicyCondition, len(p.Hard))
		for i, c := range p.Hard {
			c.Value = cloneValue(c.Value)
			out.Hard[i] = c
		}
	}
	if p.Score != nil {
		out.Score = make([]PolicyScoreRule, len(p.Score))
		for i, rule := range p.Score {
			rule.When.Value = cloneValue(rule.When.Value)
			out.Score[i] = rule
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the container types encoding/json produces.
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return cloneStrings(t)
	default:
		return v
	}
}
