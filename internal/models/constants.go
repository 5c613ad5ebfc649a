package models

const (
	CellSeparator = " | "
	RowSeparator  = "\n"

	DefaultTopK = 3

	// SystemInstruction and PromptTemplate are shared with the generative
	// model; any change in wording changes answer behaviour.
	SystemInstruction = "You are a helpful assistant."
	ContextBullet     = "- "

	ThinkTag = `(?s)<think>.*?</think>`
)

var (
	PromptTemplate = `
Use ONLY the context below to answer the question.
If the answer is not in the context, say you don't know.

Context:
%s

Question: %s

Answer:
`

	OCRPrompt = `Transcribe all text visible in this image exactly as written.
Reply with the transcribed text only. If the image contains no text, reply with nothing.`
)
