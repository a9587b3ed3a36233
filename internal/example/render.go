package example

import (
	"fmt"
	"strings"

	"openapi-mcp-server/pkg/types"
)

// renderCurl emits a line-continued curl command.
func renderCurl(ep *types.Endpoint, url string, headers [][2]string, body string, mtls bool) string {
	var b strings.Builder
	if ep.Summary != "" {
		fmt.Fprintf(&b, "# %s\n", ep.Summary)
	}
	if mtls {
		b.WriteString("# This endpoint requires a client certificate: add --cert client.pem --key client.key\n")
	}
	fmt.Fprintf(&b, "curl -X %s \\\n", ep.Method)
	fmt.Fprintf(&b, "  '%s'", url)
	for _, h := range headers {
		fmt.Fprintf(&b, " \\\n  -H '%s: %s'", h[0], h[1])
	}
	if body != "" {
		fmt.Fprintf(&b, " \\\n  -d '%s'", body)
	}
	b.WriteString("\n")
	return b.String()
}

// renderHTTPClient emits a promise-returning fetch wrapper with status
// checking and JSON parsing.
func renderHTTPClient(ep *types.Endpoint, url string, headers [][2]string, body string) string {
	fnName := ep.OperationID
	if fnName == "" {
		fnName = "callEndpoint"
	}

	var b strings.Builder
	if ep.Summary != "" {
		fmt.Fprintf(&b, "// %s\n", ep.Summary)
	}
	fmt.Fprintf(&b, "async function %s() {\n", fnName)
	b.WriteString("  try {\n")
	fmt.Fprintf(&b, "    const response = await fetch('%s', {\n", url)
	fmt.Fprintf(&b, "      method: '%s',\n", ep.Method)
	b.WriteString("      headers: {\n")
	for _, h := range headers {
		fmt.Fprintf(&b, "        '%s': '%s',\n", h[0], h[1])
	}
	b.WriteString("      },\n")
	if body != "" {
		fmt.Fprintf(&b, "      body: JSON.stringify(%s),\n", body)
	}
	b.WriteString("    });\n")
	b.WriteString("    if (!response.ok) {\n")
	b.WriteString("      throw new Error(`Request failed with status ${response.status}`);\n")
	b.WriteString("    }\n")
	b.WriteString("    return await response.json();\n")
	b.WriteString("  } catch (error) {\n")
	b.WriteString("    console.error('Request error:', error);\n")
	b.WriteString("    throw error;\n")
	b.WriteString("  }\n")
	b.WriteString("}\n")
	return b.String()
}

// renderScript emits a synchronous requests-style script that raises on
// error statuses.
func renderScript(ep *types.Endpoint, url string, headers [][2]string, body string) string {
	var b strings.Builder
	b.WriteString("import requests\n\n")
	if ep.Summary != "" {
		fmt.Fprintf(&b, "# %s\n", ep.Summary)
	}
	b.WriteString("headers = {\n")
	for _, h := range headers {
		fmt.Fprintf(&b, "    %q: %q,\n", h[0], h[1])
	}
	b.WriteString("}\n\n")

	method := strings.ToLower(string(ep.Method))
	if body != "" {
		fmt.Fprintf(&b, "payload = %s\n\n", body)
		fmt.Fprintf(&b, "response = requests.%s(%q, headers=headers, json=payload)\n", method, url)
	} else {
		fmt.Fprintf(&b, "response = requests.%s(%q, headers=headers)\n", method, url)
	}
	b.WriteString("response.raise_for_status()\n")
	b.WriteString("print(response.json())\n")
	return b.String()
}
