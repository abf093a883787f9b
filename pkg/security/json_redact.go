package security

import "strings"

const redactedPlaceholder = "***redacted***"

var sensitiveKeys = map[string]bool{
	"password":    true,
	"secret":      true,
	"token":       true,
	"key":         true,
	"vncpassword": true,
}

// RedactPayload returns a deep copy of a decoded JSON value (the create
// payload read back off disk) with sensitive leaves replaced by
// "***redacted***". A key is sensitive if its lowercased name is one of
// {password, secret, token, key, vncpassword}, or if the key's dotted path
// is "SSH.PublicKey" or ends in ".SSH.PublicKey" (so a key named
// "SSH.PublicKey" is redacted at any depth). This walks the structure by key
// name rather than matching value patterns, since the create payload is an
// arbitrarily nested JSON document, not a flat env/string corpus.
func RedactPayload(v interface{}) interface{} {
	return redactValue(v, "")
}

func redactValue(v interface{}, path string) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			if isSensitiveKey(k, childPath) {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = redactValue(val, childPath)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = redactValue(item, path)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key, fullPath string) bool {
	if sensitiveKeys[strings.ToLower(key)] {
		return true
	}
	return fullPath == "SSH.PublicKey" || strings.HasSuffix(fullPath, ".SSH.PublicKey")
}
