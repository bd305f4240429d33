package stream

import (
	"encoding/json"
	"fmt"
)

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func initLine(session string) string {
	return fmt.Sprintf(`{"type":"system","subtype":"init","session_id":%s,"model":"claude-test"}`, quote(session))
}

func messageStartLine(id string) string {
	return fmt.Sprintf(`{"type":"stream_event","event":{"type":"message_start","message":{"id":%s,"type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1}}}}`, quote(id))
}

func blockStartLine(index int, blockType string) string {
	switch blockType {
	case "thinking":
		return fmt.Sprintf(`{"type":"stream_event","event":{"type":"content_block_start","index":%d,"content_block":{"type":"thinking","thinking":"","signature":""}}}`, index)
	case "tool_use":
		return fmt.Sprintf(`{"type":"stream_event","event":{"type":"content_block_start","index":%d,"content_block":{"type":"tool_use","id":"toolu_1","name":"read","input":{}}}}`, index)
	default:
		return fmt.Sprintf(`{"type":"stream_event","event":{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}}`, index)
	}
}

func textDeltaLine(index int, text string) string {
	return fmt.Sprintf(`{"type":"stream_event","event":{"type":"content_block_delta","index":%d,"delta":{"type":"text_delta","text":%s}}}`, index, quote(text))
}

func thinkingDeltaLine(index int, text string) string {
	return fmt.Sprintf(`{"type":"stream_event","event":{"type":"content_block_delta","index":%d,"delta":{"type":"thinking_delta","thinking":%s}}}`, index, quote(text))
}

func jsonDeltaLine(index int, partial string) string {
	return fmt.Sprintf(`{"type":"stream_event","event":{"type":"content_block_delta","index":%d,"delta":{"type":"input_json_delta","partial_json":%s}}}`, index, quote(partial))
}

func blockStopLine(index int) string {
	return fmt.Sprintf(`{"type":"stream_event","event":{"type":"content_block_stop","index":%d}}`, index)
}

func messageDeltaLine(stopReason string, output int) string {
	return fmt.Sprintf(`{"type":"stream_event","event":{"type":"message_delta","delta":{"stop_reason":%s,"stop_sequence":null},"usage":{"output_tokens":%d}}}`, quote(stopReason), output)
}

func messageStopLine() string {
	return `{"type":"stream_event","event":{"type":"message_stop"}}`
}

func assistantLine(id, text string) string {
	return fmt.Sprintf(`{"type":"assistant","session_id":"s-1","message":{"id":%s,"type":"message","role":"assistant","model":"claude-test","content":[{"type":"thinking","thinking":"hmm","signature":"sig"},{"type":"text","text":%s},{"type":"tool_use","id":"toolu_1","name":"read","input":{"path":"a.go"}}],"stop_reason":"tool_use","stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":7}}}`, quote(id), quote(text))
}
