package checkpoint

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
)

// HighlightJSON pretty-prints and colourizes a JSON document for the terminal.
// Input that is not JSON is returned unchanged.
func HighlightJSON(doc string) string {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return ""
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, []byte(doc), "", "  "); err != nil {
		return doc
	}

	var out bytes.Buffer
	if err := quick.Highlight(&out, pretty.String(), "json", "terminal256", "monokai"); err != nil {
		return pretty.String()
	}
	return out.String()
}
