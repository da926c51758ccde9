// Package secrets redacts credentials from chat transcripts before they are
// sent to the oracle. Forwarded chats routinely contain tokens, passwords and
// connection strings pasted by teammates.
package secrets
