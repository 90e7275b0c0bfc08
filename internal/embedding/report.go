package embedding

import "strings"

// ExtractText builds the text that represents a report for embedding. It
// takes, in order, overview.summary, overview.mainTech, projectInfo.techStack
// joined with ", " and the title of every keyImplementations entry, and joins
// the non-empty parts with newlines. Fields of the wrong shape are skipped.
func ExtractText(report map[string]interface{}) string {
	var parts []string

	overview, _ := report["overview"].(map[string]interface{})
	if s := stringField(overview, "summary"); s != "" {
		parts = append(parts, s)
	}
	if s := stringField(overview, "mainTech"); s != "" {
		parts = append(parts, s)
	}

	projectInfo, _ := report["projectInfo"].(map[string]interface{})
	if stack, ok := projectInfo["techStack"].([]interface{}); ok && len(stack) > 0 {
		items := make([]string, 0, len(stack))
		for _, item := range stack {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
		if len(items) > 0 {
			parts = append(parts, strings.Join(items, ", "))
		}
	}

	impls, _ := report["keyImplementations"].([]interface{})
	for _, impl := range impls {
		m, ok := impl.(map[string]interface{})
		if !ok {
			continue
		}
		if s := stringField(m, "title"); s != "" {
			parts = append(parts, s)
		}
	}

	return strings.Join(parts, "\n")
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
