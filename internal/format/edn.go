package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// WriteEDN writes v as EDN. Values go through their JSON encoding first so
// json tags name the keys; snake_case keys become kebab-case keywords.
func WriteEDN(w io.Writer, v any, pretty bool) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}

	var buf bytes.Buffer
	e := ednEncoder{pretty: pretty}
	e.value(&buf, x, 0)
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

type ednEncoder struct {
	pretty bool
}

func (e ednEncoder) value(buf *bytes.Buffer, v any, depth int) {
	switch t := v.(type) {
	case nil:
		buf.WriteString("nil")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case string:
		buf.WriteString(strconv.Quote(t))
	case json.Number:
		buf.WriteString(t.String())
	case []any:
		e.seq(buf, '[', ']', len(t), depth, func(i int) {
			e.value(buf, t[i], depth+1)
		})
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.seq(buf, '{', '}', len(keys), depth, func(i int) {
			buf.WriteString(Keyword(keys[i]))
			buf.WriteByte(' ')
			e.value(buf, t[keys[i]], depth+1)
		})
	default:
		buf.WriteString(strconv.Quote(fmt.Sprint(v)))
	}
}

func (e ednEncoder) seq(buf *bytes.Buffer, open, close byte, n, depth int, item func(int)) {
	buf.WriteByte(open)
	for i := 0; i < n; i++ {
		switch {
		case e.pretty:
			buf.WriteByte('\n')
			buf.WriteString(strings.Repeat("  ", depth+1))
		case i > 0:
			buf.WriteByte(' ')
		}
		item(i)
	}
	if e.pretty && n > 0 {
		buf.WriteByte('\n')
		buf.WriteString(strings.Repeat("  ", depth))
	}
	buf.WriteByte(close)
}

// Keyword turns a JSON key into an EDN keyword: defect_name -> :defect-name.
// A leading underscore is kept so _hints stays distinct from hints.
func Keyword(k string) string {
	k = strings.TrimSpace(k)
	lead := ""
	if strings.HasPrefix(k, "_") {
		lead, k = "_", strings.TrimLeft(k, "_")
	}
	k = strings.Map(func(r rune) rune {
		switch {
		case r == '_' || r == ' ' || r == '[' || r == ']':
			return '-'
		}
		return r
	}, k)
	return ":" + lead + strings.Trim(k, "-")
}
