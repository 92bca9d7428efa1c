// Package socketclient is a request/response client for the command server.
//
// The protocol is strictly alternating: write one request, read one reply.
//
//	client, err := socketclient.NewClient("127.0.0.1:1317")
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close()
//
//	name, err := client.Send(ctx, "get_scene_name", "")
//
// A reply of "ERROR" (optionally followed by a reason) is returned as a
// *SocketError; "None" is returned verbatim.
package socketclient
