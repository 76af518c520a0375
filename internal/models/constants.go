package models

const (
	ContextSeparator = "\n---\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	MetaSource      = "source"
	MetaContentType = "content_type"
	MetaPageNumber  = "page_number"
	MetaChunkID     = "chunk_id"
	MetaTitle       = "title"

	AgentType        = "langchain"
	AgentName        = "Experto en Productos Bancarios Panameños"
	AgentDescription = "Un experto en productos bancarios panameños y tarifas de servicios bancarios que responde en español."

	FallbackAnswer = "Lo siento, no tengo esa información."
)

var (
	// SystemPromptTemplate carries the persona and the grounding rules.
	SystemPromptTemplate = `Eres un experto en productos y tarifas de servicios bancarios de Panamá.
Debes responder siempre en español. Utiliza únicamente la información de contexto para responder a la pregunta del usuario.
Si no conoces la respuesta, simplemente indica que no tienes esa información, no inventes respuestas. No menciones bancos de otros países que no sean de Panamá.
Mantén tus respuestas concisas, precisas y profesionales.`

	// QuestionPromptTemplate takes the retrieved context and the question.
	QuestionPromptTemplate = `Contexto:
%s

Pregunta: %s

Respuesta:`

	// CondensePromptTemplate rewrites a follow-up into a standalone question.
	CondensePromptTemplate = `Dada la siguiente conversación y una pregunta de seguimiento, reformula la pregunta de seguimiento para que sea una pregunta independiente, en su idioma original.

Historial:
%s

Pregunta de seguimiento: %s

Pregunta independiente:`
)
