package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyMarkups(t *testing.T) {
	m := MenuMarkup()
	require.Len(t, m.ReplyKeyboard, 2)
	require.Len(t, m.ReplyKeyboard[0], 1)
	assert.Equal(t, CreateText, m.ReplyKeyboard[0][0].Text)
	assert.Equal(t, SettingsText, m.ReplyKeyboard[1][0].Text)
	assert.True(t, m.ResizeKeyboard)

	c := CancelMarkup()
	require.Len(t, c.ReplyKeyboard, 1)
	assert.Equal(t, CancelText, c.ReplyKeyboard[0][0].Text)

	assert.True(t, RemoveKeyboard().RemoveKeyboard)
}

func TestReplyButtonsRows(t *testing.T) {
	m := ReplyButtons([]string{"a", "b"}, []string{"c"})
	require.Len(t, m.ReplyKeyboard, 2)
	assert.Len(t, m.ReplyKeyboard[0], 2)
	assert.Equal(t, "c", m.ReplyKeyboard[1][0].Text)
}
