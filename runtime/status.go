package runtime

import (
	"github.com/iarc-il/holyrig/rigerr"
	"github.com/iarc-il/holyrig/schema"
)

// resolveTyped converts one decoded raw integer into the Go value the
// dispatcher/subscription layer deals in: int64 for Type.Int, bool for
// Type.Bool, and the member name for Type.Enum (spec.md §4.3 decode step
// "coerce to the declared Type").
func resolveTyped(r *RigInstance, t schema.Type, raw int64) (any, error) {
	switch t.Kind {
	case schema.Kind.Int:
		return raw, nil
	case schema.Kind.Bool:
		return raw != 0, nil
	case schema.Kind.Enum:
		member, ok := r.cfg.Model.EnumMember(t.Enum, uint32(raw))
		if !ok {
			return nil, rigerr.New(rigerr.ErrUnknownEnumValue, "enum %q has no member for raw value %d", t.Enum, raw)
		}
		return member, nil
	default:
		return nil, rigerr.New(rigerr.ErrConfig, "unresolvable status type %v", t)
	}
}

// applyStatusRaw merges a freshly decoded status poll's raw fields into the
// RigInstance's current vector, returning the subset of field names whose
// raw value actually changed (spec.md §4.4 "compute the set of changed
// fields"). Fields that fail to resolve (S3: unknown enum value) are
// reported but leave the previous value in place.
func (r *RigInstance) applyStatusRaw(raw map[string]int64) (changed []string, values map[string]any) {
	values = map[string]any{}
	for name, rv := range raw {
		param, ok := r.cfg.Model.Schema.Status.Find(name)
		if !ok {
			continue
		}
		typed, err := resolveTyped(r, param.Type, rv)
		if err != nil {
			r.log.Warn().Str("rig", r.id).Str("field", name).Err(err).Msg("status field decode failed")
			if r.cfg.Metrics != nil {
				r.cfg.Metrics.IncIOError(r.id)
			}
			continue
		}

		if prevRaw, seen := r.statusRaw[name]; !seen || prevRaw != rv {
			changed = append(changed, name)
		}
		r.statusRaw[name] = rv
		r.status[name] = typed
		values[name] = typed
	}
	return changed, values
}

// Snapshot returns a copy of the current typed status vector, safe to hand
// to a caller outside the RigInstance's own task (e.g. get_capabilities-
// adjacent debugging, or a fresh subscriber's initial delivery).
func (r *RigInstance) Snapshot() map[string]any {
	out := make(map[string]any, len(r.status))
	for k, v := range r.status {
		out[k] = v
	}
	return out
}
