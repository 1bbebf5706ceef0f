// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/treadle/pkg/tool"
)

func TestAll_CoversEveryName(t *testing.T) {
	tools := All(Config{})
	require.Len(t, tools, len(Names()))

	byName := make(map[string]bool)
	for _, bt := range tools {
		byName[bt.Name()] = true
	}
	for _, name := range Names() {
		assert.True(t, byName[name], "Names() lists %q but All() does not build it", name)
	}
}

func TestAll_ToolsHaveCompleteSurfaces(t *testing.T) {
	for _, bt := range All(Config{}) {
		assert.NotEmpty(t, bt.Name())
		assert.NotEmpty(t, bt.Description(), "%s has no description", bt.Name())
		assert.NotEmpty(t, bt.SelectionHints(), "%s has no selection hints", bt.Name())

		schema := bt.InputSchema()
		require.NotNil(t, schema, "%s has no input schema", bt.Name())
		assert.Equal(t, "object", schema.Type)
	}
}

func TestByName(t *testing.T) {
	for _, name := range Names() {
		bt := ByName(name, Config{})
		require.NotNil(t, bt, "ByName(%q) returned nil", name)
		assert.Equal(t, name, bt.Name())
	}
	assert.Nil(t, ByName("teleporter", Config{}))
}

func TestRegisterAll(t *testing.T) {
	reg := tool.NewRegistry()
	RegisterAll(reg, Config{BaseDir: t.TempDir()})

	assert.Equal(t, len(Names()), reg.Count())
	for _, name := range Names() {
		_, ok := reg.Get(name)
		assert.True(t, ok, "%s not registered", name)
	}
}

func TestRegisterByNames_SkipsUnknown(t *testing.T) {
	reg := tool.NewRegistry()
	RegisterByNames(reg, Config{}, []string{"datetime", "file_read", "mcp_custom_thing"})

	assert.Equal(t, 2, reg.Count())
	_, ok := reg.Get("datetime")
	assert.True(t, ok)
	_, ok = reg.Get("mcp_custom_thing")
	assert.False(t, ok)
}

func TestShellAllowListFlowsThroughConfig(t *testing.T) {
	bt := ByName("shell_execute", Config{AllowedCommands: []string{"echo"}})
	st, ok := bt.(*ShellExecuteTool)
	require.True(t, ok)
	assert.True(t, st.allowed["echo"])
	assert.False(t, st.allowed["rm"])
}
