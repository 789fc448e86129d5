package wolfram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/daniilk/voice-assistant/backend/internal/model/answer"
)

type queryEnvelope struct {
	QueryResult wireResult `json:"queryresult"`
}

type wireResult struct {
	Success json.RawMessage `json:"success"`
	Error   json.RawMessage `json:"error"`
	Pods    []wirePod       `json:"pods"`
}

type wirePod struct {
	ID      string            `json:"id"`
	Title   string            `json:"title"`
	Error   json.RawMessage   `json:"error"`
	Subpods []json.RawMessage `json:"subpods"`
}

type wireErrorDetail struct {
	Code any    `json:"code"`
	Msg  string `json:"msg"`
}

type wireImage struct {
	Src   string `json:"src"`
	Alt   string `json:"alt"`
	Title string `json:"title"`
}

type wireSound struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// subpod keys that describe the subpod rather than carry content.
var subpodMetadata = map[string]struct{}{
	"title":   {},
	"primary": {},
}

// decodeResult parses a v2 query response body with output=json.
func decodeResult(body []byte) (*answer.QueryResult, error) {
	var envelope queryEnvelope
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal query result: %w", err)
	}

	raw := envelope.QueryResult
	success, _, _, err := decodeFlag(raw.Success)
	if err != nil {
		return nil, fmt.Errorf("success flag: %w", err)
	}
	failed, code, msg, err := decodeFlag(raw.Error)
	if err != nil {
		return nil, fmt.Errorf("error flag: %w", err)
	}

	result := &answer.QueryResult{
		Success:      success,
		Error:        failed,
		ErrorCode:    code,
		ErrorMessage: msg,
		Pods:         make([]answer.Pod, 0, len(raw.Pods)),
	}

	for i, p := range raw.Pods {
		pod, err := decodePod(p)
		if err != nil {
			return nil, fmt.Errorf("pod %d: %w", i, err)
		}
		result.Pods = append(result.Pods, pod)
	}

	return result, nil
}

func decodePod(p wirePod) (answer.Pod, error) {
	podErr, _, _, err := decodeFlag(p.Error)
	if err != nil {
		return answer.Pod{}, fmt.Errorf("error flag: %w", err)
	}

	pod := answer.Pod{
		ID:      p.ID,
		Title:   p.Title,
		Error:   podErr,
		Subpods: make([]answer.Subpod, 0, len(p.Subpods)),
	}

	for i, rawSubpod := range p.Subpods {
		subpod, err := decodeSubpod(rawSubpod)
		if err != nil {
			return answer.Pod{}, fmt.Errorf("subpod %d: %w", i, err)
		}
		pod.Subpods = append(pod.Subpods, subpod)
	}

	return pod, nil
}

// decodeSubpod turns the flat subpod object into an ordered content list:
// plaintext, image, mathml, sound, then any other representation by key.
func decodeSubpod(data json.RawMessage) (answer.Subpod, error) {
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &fields); err != nil {
		return answer.Subpod{}, err
	}

	var subpod answer.Subpod
	if title, ok := fields["title"]; ok {
		if err := sonic.Unmarshal(title, &subpod.Title); err != nil {
			return answer.Subpod{}, fmt.Errorf("title: %w", err)
		}
	}

	if raw, ok := fields["plaintext"]; ok {
		var text string
		if err := sonic.Unmarshal(raw, &text); err != nil {
			return answer.Subpod{}, fmt.Errorf("plaintext: %w", err)
		}
		subpod.Contents = append(subpod.Contents, answer.PlainText(text))
	}

	if raw, ok := fields["img"]; ok {
		var img wireImage
		if err := sonic.Unmarshal(raw, &img); err != nil {
			return answer.Subpod{}, fmt.Errorf("img: %w", err)
		}
		subpod.Contents = append(subpod.Contents, answer.Image(img.Src, img.Alt))
	}

	if raw, ok := fields["mathml"]; ok {
		var markup string
		if err := sonic.Unmarshal(raw, &markup); err != nil {
			return answer.Subpod{}, fmt.Errorf("mathml: %w", err)
		}
		subpod.Contents = append(subpod.Contents, answer.Content{Kind: answer.KindMathML, Text: markup})
	}

	if raw, ok := fields["sound"]; ok {
		var snd wireSound
		if err := sonic.Unmarshal(raw, &snd); err != nil {
			return answer.Subpod{}, fmt.Errorf("sound: %w", err)
		}
		subpod.Contents = append(subpod.Contents, answer.Content{Kind: answer.KindSound, URL: snd.URL, Name: snd.Type})
	}

	var rest []string
	for key := range fields {
		switch key {
		case "plaintext", "img", "mathml", "sound":
			continue
		}
		if _, meta := subpodMetadata[key]; meta {
			continue
		}
		rest = append(rest, key)
	}
	sort.Strings(rest)
	for _, key := range rest {
		subpod.Contents = append(subpod.Contents, answer.Unknown(key, string(fields[key])))
	}

	return subpod, nil
}

// decodeFlag reads a field that the service encodes as a boolean, a quoted
// boolean, or an object {"code","msg"} meaning true with details.
func decodeFlag(raw json.RawMessage) (bool, string, string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false, "", "", nil
	}

	switch trimmed[0] {
	case 't', 'f':
		var v bool
		if err := sonic.Unmarshal(trimmed, &v); err != nil {
			return false, "", "", err
		}
		return v, "", "", nil
	case '"':
		var s string
		if err := sonic.Unmarshal(trimmed, &s); err != nil {
			return false, "", "", err
		}
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return false, "", "", err
		}
		return v, "", "", nil
	case '{':
		var detail wireErrorDetail
		if err := sonic.Unmarshal(trimmed, &detail); err != nil {
			return false, "", "", err
		}
		return true, formatCode(detail.Code), strings.TrimSpace(detail.Msg), nil
	default:
		return false, "", "", fmt.Errorf("unexpected flag value %s", string(trimmed))
	}
}

func formatCode(code any) string {
	switch v := code.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
