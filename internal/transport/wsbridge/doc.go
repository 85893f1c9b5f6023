// Package wsbridge drives a tenant session through an external
// browser-automation sidecar over one WebSocket connection per tenant.
//
// Frames are JSON objects with a "type" field. The bridge sends:
//
//	start    {client_id, session?}   session is the stored blob, base64
//	send     {request_id, chat_id, text}
//	destroy  {}
//
// and the sidecar answers with:
//
//	qr            {qr}
//	ready         {number}
//	session_saved {session}          bridge persists, then emits session_persisted
//	message       {message: {id, from, body, from_me, timestamp}}
//	disconnected  {reason}
//	send_result   {request_id, message_id?, error?}
package wsbridge
