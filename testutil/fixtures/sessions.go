// =============================================================================
// 📦 测试数据工厂 - 会话身份与负载
// =============================================================================
// 提供预定义的参与方身份和线上负载，用于测试
// =============================================================================
package fixtures

import (
	"fmt"

	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/wire"
)

// Coordinator 返回协调方身份，peers 中包含自身
func Coordinator(id string, clients ...string) session.ParticipantIdentity {
	return session.ParticipantIdentity{
		ID:          id,
		Coordinator: true,
		Peers:       append([]string{id}, clients...),
	}
}

// Client 返回客户端身份
func Client(id, coordinator string, others ...string) session.ParticipantIdentity {
	peers := append([]string{coordinator, id}, others...)
	return session.ParticipantIdentity{ID: id, Peers: peers}
}

// ClientIDs 返回 n 个客户端 ID：client-0 ... client-(n-1)
func ClientIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("client-%d", i)
	}
	return ids
}

// FragmentPayload 编码客户端片段
func FragmentPayload(from string, body any) []byte {
	return mustEncode(wire.Fragment(from, body))
}

// BroadcastPayload 编码协调方广播
func BroadcastPayload(from string, body any) []byte {
	return mustEncode(wire.Broadcast(from, body))
}

// DonePayload 编码完成标记
func DonePayload(from string) []byte {
	return mustEncode(wire.Done(from))
}

func mustEncode(e wire.Envelope) []byte {
	data, err := wire.Encode(wire.JSONCodec{}, e)
	if err != nil {
		panic(err)
	}
	return data
}
