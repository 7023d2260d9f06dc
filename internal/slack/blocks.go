package slack

import "fmt"

// Response is the immediate JSON answer to a slash command or interaction.
type Response struct {
	ResponseType string  `json:"response_type"`
	Text         string  `json:"text,omitempty"`
	Blocks       []Block `json:"blocks,omitempty"`
}

// Block is one Block Kit layout block.
type Block struct {
	Type     string          `json:"type"`
	Text     *TextObject     `json:"text,omitempty"`
	Elements []ButtonElement `json:"elements,omitempty"`
}

// TextObject is a Block Kit text object.
type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// ButtonElement is a Block Kit button whose value carries an encoded
// action string for the interaction endpoint.
type ButtonElement struct {
	Type  string     `json:"type"`
	Text  TextObject `json:"text"`
	Value string     `json:"value"`
	Style string     `json:"style,omitempty"`
}

// Button describes a button before Block Kit encoding.
type Button struct {
	Text  string
	Value string
	Style string
}

// InChannel answers visibly to the whole channel.
func InChannel(text string) *Response {
	return &Response{ResponseType: "in_channel", Text: text}
}

// Ephemeral answers visibly only to the requesting user.
func Ephemeral(text string) *Response {
	return &Response{ResponseType: "ephemeral", Text: text}
}

// Monospaced answers with a code block, optionally titled.
func Monospaced(text, title string) *Response {
	t := ""
	if title != "" {
		t = title + "\n"
	}
	return &Response{
		ResponseType: "in_channel",
		Blocks: []Block{
			Section(fmt.Sprintf("%s```%s```", t, text)),
		},
	}
}

// Section builds a markdown section block.
func Section(text string) Block {
	return Block{
		Type: "section",
		Text: &TextObject{Type: "mrkdwn", Text: text},
	}
}

// Buttons builds an actions block from buttons.
func Buttons(bs ...Button) Block {
	elements := make([]ButtonElement, 0, len(bs))
	for _, b := range bs {
		elements = append(elements, ButtonElement{
			Type:  "button",
			Text:  TextObject{Type: "plain_text", Text: b.Text, Emoji: true},
			Value: b.Value,
			Style: b.Style,
		})
	}
	return Block{Type: "actions", Elements: elements}
}

// WithBlocks builds an in-channel response from blocks.
func WithBlocks(blocks ...Block) *Response {
	return &Response{ResponseType: "in_channel", Blocks: blocks}
}
