package agui

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ContextItem is one ConvoUI composer attachment as sent over the wire:
// contextType, displayName, encodedContent, metadata, encodingMetadata.
type ContextItem map[string]any

const summaryLimit = 120

// SummarizeContextItem renders a one-glance description of an attachment,
// e.g. "📍 Location: lat=31.23040, lon=121.47370, name=Shanghai".
func SummarizeContextItem(item ContextItem) string {
	typ := stringOr(item["contextType"], "unknown")
	name := stringOr(item["displayName"], displayName(typ))
	encoded := stringOr(item["encodedContent"], "")

	meta := map[string]any{}
	if legacy, ok := item["encodingMetadata"].(map[string]any); ok {
		for k, v := range legacy {
			meta[k] = v
		}
	}
	if m, ok := item["metadata"].(map[string]any); ok {
		for k, v := range m {
			meta[k] = v
		}
	}
	mime := stringOr(meta["mime"], stringOr(meta["contentType"], ""))

	fallback := "(no content)"
	if encoded != "" {
		fallback = truncate(encoded, summaryLimit)
	}

	if localized, _ := meta["localizedDescription"].(string); localized != "" {
		icon := "🔗"
		switch typ {
		case "location":
			icon = "📍"
		case "calendar", "calendar_event", "event":
			icon = "🗓️"
		}
		return fmt.Sprintf("%s %s: %s", icon, name, localized)
	}

	switch typ {
	case "location":
		return summarizeLocation(name, encoded, fallback)
	case "calendar", "calendarEvent", "event":
		return summarizeCalendar(name, encoded, fallback)
	}

	if strings.Contains(mime, "json") {
		if obj, ok := decodePayloadObject(encoded); ok {
			return "🔗 " + name + ":\n" + prettyJSON(obj)
		}
	}
	return fmt.Sprintf("🔗 %s: %s", name, fallback)
}

func summarizeLocation(name, encoded, fallback string) string {
	obj, ok := decodePayloadObject(encoded)
	if !ok {
		return fmt.Sprintf("📍 %s: %s", name, fallback)
	}

	lat, hasLat := firstNumber(obj, "latitude", "lat")
	lon, hasLon := firstNumber(obj, "longitude", "lng", "lon")
	if coords, ok := obj["coordinates"].(map[string]any); ok {
		if !hasLat {
			lat, hasLat = firstNumber(coords, "latitude", "lat")
		}
		if !hasLon {
			lon, hasLon = firstNumber(coords, "longitude", "lng", "lon")
		}
	}
	place := firstString(obj, name, "name", "label", "title")
	accuracy, hasAccuracy := firstNumber(obj, "horizontalAccuracy", "accuracy")

	var parts []string
	if hasLat {
		parts = append(parts, fmt.Sprintf("lat=%.5f", lat))
	}
	if hasLon {
		parts = append(parts, fmt.Sprintf("lon=%.5f", lon))
	}
	if hasAccuracy {
		parts = append(parts, fmt.Sprintf("±%.0fm", accuracy))
	}
	if place != "" {
		parts = append(parts, "name="+place)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("📍 %s: %s", name, strings.Join(parts, ", "))
	}
	return "📍 " + name + ":\n" + prettyJSON(obj)
}

func summarizeCalendar(name, encoded, fallback string) string {
	obj, ok := decodePayloadObject(encoded)
	if !ok {
		return fmt.Sprintf("🗓️ %s: %s", name, fallback)
	}

	title := any(name)
	if v, ok := firstPresent(obj, "title", "summary"); ok {
		title = v
	}
	lines := []string{fmt.Sprintf("🗓️ %s", scalar(title))}
	if v, ok := firstPresent(obj, "start", "startDate"); ok {
		lines = append(lines, "  start: "+scalar(v))
	}
	if v, ok := firstPresent(obj, "end", "endDate"); ok {
		lines = append(lines, "  end:   "+scalar(v))
	}
	if v, ok := obj["location"]; ok {
		lines = append(lines, "  where: "+scalar(v))
	}
	return strings.Join(lines, "\n")
}

// decodePayloadObject reads encodedContent as base64 JSON first, then as raw JSON.
func decodePayloadObject(payload string) (map[string]any, bool) {
	if payload == "" {
		return nil, false
	}
	if data, ok := decodeBase64Lenient(payload); ok {
		var obj map[string]any
		if json.Unmarshal(data, &obj) == nil && obj != nil {
			return obj, true
		}
	}
	var obj map[string]any
	if json.Unmarshal([]byte(payload), &obj) == nil && obj != nil {
		return obj, true
	}
	return nil, false
}

// decodeBase64Lenient drops characters outside the base64 alphabet before decoding.
func decodeBase64Lenient(s string) ([]byte, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '/', r == '=':
			return r
		}
		return -1
	}, s)
	if data, err := base64.StdEncoding.DecodeString(cleaned); err == nil {
		return data, true
	}
	if data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "=")); err == nil {
		return data, true
	}
	return nil, false
}

// displayName turns "calendar_event" into "Calendar Event".
func displayName(typ string) string {
	words := strings.Fields(strings.ReplaceAll(typ, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = strings.ToUpper(string(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func firstNumber(obj map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := number(obj[k]); ok {
			return f, true
		}
	}
	return 0, false
}

func firstString(obj map[string]any, def string, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			return v
		case float64, bool:
			return scalar(v)
		}
	}
	return def
}

func firstPresent(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// scalar prints JSON values the way a person would write them.
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func prettyJSON(obj map[string]any) string {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Sprint(obj)
	}
	return string(data)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "…"
}
