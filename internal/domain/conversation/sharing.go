package conversation

import (
	"fmt"
	"strings"
	"time"
)

// SharedKey builds the namespaced collected-data key used for
// cross-agent sharing: shared_<src>_to_<dst>_<key>.
func SharedKey(src, dst AgentType, key string) string {
	return fmt.Sprintf("shared_%s_to_%s_%s", src, dst, key)
}

// ShareData publishes a value from one agent to another through the
// context's collected data map.
func (c *Context) ShareData(src, dst AgentType, key string, value any) {
	c.AddCollectedData(SharedKey(src, dst, key), map[string]any{
		"value":     value,
		"shared_by": string(src),
		"shared_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetSharedData looks up a value shared with the given agent under key,
// from any source agent, and unwraps the share envelope.
func (c *Context) GetSharedData(dst AgentType, key string) (any, bool) {
	toMarker := "_to_" + string(dst) + "_"
	for k, entry := range c.CollectedData {
		if !strings.HasPrefix(k, "shared_") {
			continue
		}
		idx := strings.Index(k, toMarker)
		if idx < 0 {
			continue
		}
		if k[idx+len(toMarker):] != key {
			continue
		}
		if envelope, ok := entry.Value.(map[string]any); ok {
			if value, ok := envelope["value"]; ok {
				return value, true
			}
		}
		return entry.Value, true
	}
	return nil, false
}
