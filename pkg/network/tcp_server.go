package network

import (
	"bytes"
	"encoding/binary"
	"io"
	"log"
	"net"

	"tupledb/pkg/common"
	"tupledb/pkg/core"
	"tupledb/pkg/key"
	"tupledb/pkg/protocol"
)

type TCPServer struct {
	store *core.Store
}

func NewTCPServer(store *core.Store) *TCPServer {
	return &TCPServer{store: store}
}

func (s *TCPServer) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("[TCP] Listening on %s (Binary Protocol)", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("[TCP] Accept error: %v", err)
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *TCPServer) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		req, err := protocol.Decode(conn)
		if err != nil {
			if err != io.EOF {
				// log.Printf("[TCP] Decode error: %v", err)
			}
			return
		}

		switch req.Op {
		case protocol.OpPut:
			k, err := key.FromBytes(req.Key)
			if err != nil {
				protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
				continue
			}
			if err := s.store.Put(k, req.Value); err != nil {
				protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
				continue
			}
			protocol.Encode(conn, protocol.RespOK, nil, nil)

		case protocol.OpGet:
			k, err := key.FromBytes(req.Key)
			if err != nil {
				protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
				continue
			}
			val, found := s.store.Get(k)
			if found {
				protocol.Encode(conn, protocol.RespVal, nil, val)
			} else {
				protocol.Encode(conn, protocol.RespErr, nil, []byte("Not Found"))
			}

		case protocol.OpDel:
			k, err := key.FromBytes(req.Key)
			if err != nil {
				protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
				continue
			}
			if err := s.store.Delete(k); err != nil {
				protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
				continue
			}
			protocol.Encode(conn, protocol.RespOK, nil, nil)

		case protocol.OpScan:
			// Key=StartKey, Value=EndKey
			start, err := key.FromBytes(req.Key)
			if err != nil {
				protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
				continue
			}
			end, err := key.FromBytes(req.Value)
			if err != nil {
				protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
				continue
			}

			records := s.store.Scan(start, end)

			// [Count 4B] + ( [KeyLen 2B] + [Key] + [ValLen 4B] + [Val Bytes] ) * Count
			encodedData := encodeRecords(records)
			protocol.Encode(conn, protocol.RespVal, nil, encodedData)
		}
	}
}

func encodeRecords(records []common.Record) []byte {
	buf := new(bytes.Buffer)

	binary.Write(buf, binary.BigEndian, uint32(len(records)))

	for _, r := range records {
		binary.Write(buf, binary.BigEndian, uint16(r.Key.Size()))
		buf.Write(r.Key.Raw())
		binary.Write(buf, binary.BigEndian, uint32(len(r.Value)))
		buf.Write(r.Value)
	}
	return buf.Bytes()
}
