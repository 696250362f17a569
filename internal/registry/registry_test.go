package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsoncCommands = `{
	// disk and memory overview
	"disk": {
		"title": "<b>💾 Disk</b>",
		"description": "Disk usage",
		"usage": "df -h",
		"inodes": "df -i",
		"biggest": "du -sh /var/* | sort -h | tail -5",
	},
	"memory": {
		"free": "free -m",
		"top": "ps aux --sort=-%mem | head -5"
	}
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadJSONCPreservesOrder(t *testing.T) {
	composites, err := Load(writeFile(t, "commands.json", jsoncCommands))
	require.NoError(t, err)
	require.Len(t, composites, 2)

	disk := composites[0]
	assert.Equal(t, "disk", disk.Name)
	assert.Equal(t, "<b>💾 Disk</b>", disk.Title)
	assert.Equal(t, "Disk usage", disk.Description)
	assert.Equal(t, []Step{
		{Label: "usage", Command: "df -h"},
		{Label: "inodes", Command: "df -i"},
		{Label: "biggest", Command: "du -sh /var/* | sort -h | tail -5"},
	}, disk.Steps)

	mem := composites[1]
	assert.Equal(t, "memory", mem.Name)
	assert.Equal(t, "", mem.Title)
	assert.Equal(t, "<b>🔹 memory:</b>", mem.DisplayTitle())
	assert.Equal(t, "free", mem.Steps[0].Label)
	assert.Equal(t, "top", mem.Steps[1].Label)
}

func TestLoadYAML(t *testing.T) {
	body := `
net:
  description: Network
  addresses: ip -brief addr
  routes: ip route
logs:
  tail: journalctl -n 20
`
	composites, err := Load(writeFile(t, "commands.yaml", body))
	require.NoError(t, err)
	require.Len(t, composites, 2)
	assert.Equal(t, "net", composites[0].Name)
	assert.Equal(t, "Network", composites[0].Description)
	assert.Equal(t, []Step{
		{Label: "addresses", Command: "ip -brief addr"},
		{Label: "routes", Command: "ip route"},
	}, composites[0].Steps)
	assert.Equal(t, "logs", composites[1].Name)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.json", `{"disk": {"usage": 5}}`))
	assert.ErrorContains(t, err, `"usage"`)

	_, err = Load(writeFile(t, "list.json", `["df -h"]`))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "nested.yml", "disk:\n  usage:\n    - df -h\n"))
	assert.Error(t, err)
}

func TestDuplicateStepLabelKeepsPosition(t *testing.T) {
	composites, err := Load(writeFile(t, "dup.json", `{"x": {"a": "1", "b": "2", "a": "3"}}`))
	require.NoError(t, err)
	assert.Equal(t, []Step{{Label: "a", Command: "3"}, {Label: "b", Command: "2"}}, composites[0].Steps)
}

func TestRegistryLookupAndListing(t *testing.T) {
	reg := New([]Composite{
		{Name: "disk", Description: "Disk usage", Steps: []Step{{Label: "usage", Command: "df -h"}}},
		{Name: "status", Steps: []Step{{Label: "x", Command: "true"}}},
		{Name: "bad name", Steps: nil},
		{Name: "disk", Description: "again"},
		{Name: "Mem", Title: "Memory"},
	}, nil)

	e, ok := reg.Lookup("status")
	require.True(t, ok)
	assert.Equal(t, KindBuiltin, e.Kind)
	assert.Equal(t, CmdStatus, e.Builtin)

	e, ok = reg.Lookup("disk")
	require.True(t, ok)
	assert.Equal(t, KindComposite, e.Kind)
	assert.Equal(t, "Disk usage", e.Composite.Description)

	for _, alias := range []string{"help", "data"} {
		e, ok = reg.Lookup(alias)
		require.True(t, ok, alias)
		assert.Equal(t, KindBuiltin, e.Kind)
	}
	assert.Equal(t, CmdData, e.Builtin)

	_, ok = reg.Lookup("Disk")
	assert.False(t, ok, "lookup must be case-sensitive")
	_, ok = reg.Lookup("mem")
	assert.False(t, ok)
	_, ok = reg.Lookup("Mem")
	assert.True(t, ok)

	composites := reg.Composites()
	require.Len(t, composites, 2)
	assert.Equal(t, "disk", composites[0].Name)
	assert.Equal(t, "Mem", composites[1].Name)

	infos := reg.Commands()
	last := infos[len(infos)-1]
	assert.Equal(t, Info{Name: "Mem", Description: "Memory", Composite: true}, last)
	assert.Equal(t, string(CmdStart), infos[0].Name)
}

func TestRegistryIsolatedFromCaller(t *testing.T) {
	steps := []Step{{Label: "a", Command: "true"}}
	reg := New([]Composite{{Name: "c", Steps: steps}}, nil)
	steps[0].Command = "rm -rf /"

	e, _ := reg.Lookup("c")
	e.Composite.Steps[0].Command = "changed"

	again, _ := reg.Lookup("c")
	assert.Equal(t, "true", again.Composite.Steps[0].Command)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "✅ Done: a < b", PlainText("<b>✅ Done:</b> <code>a &lt; b</code>"))
	assert.Equal(t, "🔹 disk:", PlainText(" <b>🔹 disk:</b> "))
}
