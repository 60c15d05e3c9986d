package feed

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"GoldPull/internal/domain/models"
)

// Normalize turns an upstream payload into a canonical tick. The payload may
// be wrapped in "data" and may hold entries as an object keyed by code or as an
// array. Entries without a "code" are ignored. It returns nil when nothing
// usable was found and never fails.
func Normalize(raw []byte) models.CanonicalTick {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return nil
	}
	return NormalizeValue(root)
}

// NormalizeValue is Normalize for an already decoded payload.
func NormalizeValue(v interface{}) models.CanonicalTick {
	if obj, ok := v.(map[string]interface{}); ok {
		if inner, ok := obj["data"]; ok {
			v = inner
		}
	}

	tick := make(models.CanonicalTick)
	switch body := v.(type) {
	case map[string]interface{}:
		for _, entry := range body {
			addEntry(tick, entry)
		}
	case []interface{}:
		for _, entry := range body {
			addEntry(tick, entry)
		}
	}
	if len(tick) == 0 {
		return nil
	}
	return tick
}

func addEntry(tick models.CanonicalTick, entry interface{}) {
	m, ok := entry.(map[string]interface{})
	if !ok {
		return
	}
	code := strings.TrimSpace(toString(m["code"]))
	if code == "" {
		return
	}

	q := models.NormalizedQuote{
		Code:  code,
		Buy:   toFloat(m["alis"]),
		Sell:  toFloat(m["satis"]),
		Low:   toFloat(m["dusuk"]),
		High:  toFloat(m["yuksek"]),
		Close: toFloat(m["kapanis"]),
		Date:  toString(m["tarih"]),
	}
	if dir, ok := m["dir"].(map[string]interface{}); ok {
		q.Direction = models.Direction{
			BuyDir:  toString(dir["alis_dir"]),
			SellDir: toString(dir["satis_dir"]),
		}
	}
	tick[code] = q
}

func toFloat(v interface{}) float64 {
	var f float64
	switch x := v.(type) {
	case json.Number:
		f, _ = x.Float64()
	case float64:
		f = x
	case int:
		f = float64(x)
	case string:
		f = parseDecimal(x)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// parseDecimal accepts "34.50", "34,50" and "1.234,50".
func parseDecimal(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if comma := strings.LastIndex(s, ","); comma >= 0 {
		if dot := strings.LastIndex(s, "."); dot < comma {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}
