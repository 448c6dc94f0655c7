/*
Package wire defines the payload format exchanged between participants.

Every payload is an Envelope: a version number, a kind tag, the sender ID and a
structural body. Three kinds exist:

  - fragment:  a client value addressed to the coordinator
  - broadcast: a coordinator value fanned out to every client
  - done:      a completion marker, whose body is always DoneSentinel

Envelopes are encoded by a Codec. JSONCodec produces canonical compact JSON and
is the default. ProtoCodec encodes the same tree as a protobuf
google.protobuf.Value.
*/
package wire
