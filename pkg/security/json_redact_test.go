package security

import "testing"

func TestRedactPayload_SSHPublicKey(t *testing.T) {
	payload := map[string]interface{}{
		"cloudstack.vm.details": map[string]interface{}{
			"name": "vm1",
			"details": map[string]interface{}{
				"SSH.PublicKey": "ssh-rsa AAAA...",
			},
		},
	}
	out := RedactPayload(payload).(map[string]interface{})
	details := out["cloudstack.vm.details"].(map[string]interface{})
	if details["name"] != "vm1" {
		t.Errorf("expected non-sensitive field to survive, got %v", details["name"])
	}
	inner := details["details"].(map[string]interface{})
	if inner["SSH.PublicKey"] != redactedPlaceholder {
		t.Errorf("SSH.PublicKey = %v, want redacted", inner["SSH.PublicKey"])
	}
}

func TestRedactPayload_SensitiveKeyNames(t *testing.T) {
	payload := map[string]interface{}{
		"password": "hunter2",
		"token":    "abc123",
		"nested": map[string]interface{}{
			"secret": "shh",
			"other":  "keep me",
		},
	}
	out := RedactPayload(payload).(map[string]interface{})
	if out["password"] != redactedPlaceholder || out["token"] != redactedPlaceholder {
		t.Fatalf("top-level sensitive keys not redacted: %+v", out)
	}
	nested := out["nested"].(map[string]interface{})
	if nested["secret"] != redactedPlaceholder {
		t.Errorf("nested secret not redacted: %v", nested["secret"])
	}
	if nested["other"] != "keep me" {
		t.Errorf("non-sensitive nested value altered: %v", nested["other"])
	}
}

func TestRedactPayload_Slice(t *testing.T) {
	payload := map[string]interface{}{
		"nics": []interface{}{
			map[string]interface{}{"mac": "aa:bb:cc:dd:ee:ff", "key": "topsecret"},
		},
	}
	out := RedactPayload(payload).(map[string]interface{})
	nics := out["nics"].([]interface{})
	nic := nics[0].(map[string]interface{})
	if nic["mac"] != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("mac should survive redaction, got %v", nic["mac"])
	}
	if nic["key"] != redactedPlaceholder {
		t.Errorf("key should be redacted, got %v", nic["key"])
	}
}
