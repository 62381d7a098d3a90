package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageWireShape(t *testing.T) {
	text := NewTextMessage(RoleSystem, "be brief")
	text.Kind = KindDocument
	raw, err := json.Marshal(text)
	require.NoError(t, err)
	require.JSONEq(t, `{"role":"system","content":"be brief"}`, string(raw))

	multi := NewUserMessage("what is this?", "data:image/jpeg;base64,AAAA")
	raw, err = json.Marshal(multi)
	require.NoError(t, err)
	require.JSONEq(t, `{"role":"user","content":[
		{"type":"text","text":"what is this?"},
		{"type":"image_url","image_url":{"url":"data:image/jpeg;base64,AAAA"}}
	]}`, string(raw))
}

func TestContentUnmarshalKeepsVariant(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":"hi"}`), &m))
	require.False(t, m.Content.IsMultimodal())
	require.Equal(t, "hi", m.StringContent())

	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":[{"type":"text","text":"a"},{"type":"image_url","image_url":{"url":"u"}},{"type":"text","text":"b"}]}`), &m))
	require.True(t, m.Content.IsMultimodal())
	require.Equal(t, "a\nb", m.StringContent())
	require.Equal(t, 1, m.Content.ImageCount())

	require.Error(t, json.Unmarshal([]byte(`{"role":"user","content":42}`), &m))
}

func TestNewUserMessageWithoutImageIsText(t *testing.T) {
	m := NewUserMessage("plain", "")
	require.False(t, m.Content.IsMultimodal())
	require.Len(t, m.Content.Parts(), 1)
	require.Zero(t, m.Content.ImageCount())
}

func TestRoleValid(t *testing.T) {
	require.True(t, RoleAssistant.Valid())
	require.False(t, Role("tool").Valid())
}
