// Package agent implements the conversational agents behind the chat API.
//
// Each turn is handled by exactly one agent selected by the intent router: a
// plain chat agent with no tools, and two tool-using agents (document search
// and document edit) that share a bounded model/tool loop. Conversation
// state is a plain struct with an append-only message history; there is no
// hidden graph, and every state transition is visible in the loop code.
package agent
