package domain

import "go.mongodb.org/mongo-driver/bson/primitive"

// ViewerIdentifier is implemented by identity objects that expose their own id.
type ViewerIdentifier interface {
	ViewerID() string
}

// ResolveViewer normalizes whatever the auth provider handed us into a single
// opaque viewer id. The boolean is false when v carries no usable identity.
//
// Accepted shapes: a non-empty string, a map with a string "_id" (preferred)
// or "id" field, a non-zero mongo ObjectID, or a ViewerIdentifier.
func ResolveViewer(v any) (string, bool) {
	switch id := v.(type) {
	case nil:
		return "", false
	case string:
		return id, id != ""
	case *string:
		if id == nil {
			return "", false
		}
		return *id, *id != ""
	case primitive.ObjectID:
		if id.IsZero() {
			return "", false
		}
		return id.Hex(), true
	case map[string]string:
		if s := id["_id"]; s != "" {
			return s, true
		}
		s := id["id"]
		return s, s != ""
	case map[string]any:
		return fromFields(id)
	case ViewerIdentifier:
		s := id.ViewerID()
		return s, s != ""
	}
	return "", false
}

func fromFields(m map[string]any) (string, bool) {
	for _, key := range []string{"_id", "id"} {
		switch f := m[key].(type) {
		case string:
			if f != "" {
				return f, true
			}
		case primitive.ObjectID:
			if !f.IsZero() {
				return f.Hex(), true
			}
		}
	}
	return "", false
}
