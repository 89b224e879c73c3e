package volume

import (
	"fmt"

	"github.com/rstms/cfs/block"
	"go.uber.org/zap"
)

// ChunkEntry is a chunk header together with its block index.
type ChunkEntry struct {
	Index block.Index
	block.ChunkHeader
}

func (v *Volume) chunkChain(file block.File) ([]ChunkEntry, error) {
	entries := make([]ChunkEntry, 0, min(int(file.Chunks), v.store.Len()))
	for i := file.Start; i != block.Nil; {
		if len(entries) >= v.store.Len() {
			return nil, fmt.Errorf("%w: chunk chain of %q does not terminate", ErrCorrupt, file.Name)
		}
		header, err := v.store.ChunkHeader(i)
		if err != nil {
			return nil, err
		}
		if header.Size > block.ChunkSize {
			return nil, fmt.Errorf("%w: chunk %d claims %d bytes", ErrCorrupt, i, header.Size)
		}
		entries = append(entries, ChunkEntry{Index: i, ChunkHeader: header})
		i = header.Next
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: file %q has no chunks", ErrCorrupt, file.Name)
	}
	return entries, nil
}

// Chunks returns the chunk chain of a file in order.
func (v *Volume) Chunks(index block.Index) ([]ChunkEntry, error) {
	file, err := v.store.File(index)
	if err != nil {
		return nil, err
	}
	return v.chunkChain(file)
}

// Write appends data to the end of a file. Every chunk the data needs is
// allocated before anything is written, so a failed write leaves the
// file unchanged.
func (v *Volume) Write(index block.Index, data []byte) error {
	file, err := v.store.File(index)
	if err != nil {
		return err
	}
	chain, err := v.chunkChain(file)
	if err != nil {
		return err
	}
	last := chain[len(chain)-1]
	cursor := int(last.Size)

	buf, err := v.store.Data(last.Data)
	if err != nil {
		return err
	}

	needed := 0
	if room := block.ChunkSize - cursor; len(data) > room {
		needed = (len(data) - room + block.ChunkSize - 1) / block.ChunkSize
	}
	blocks, err := v.allocate(2 * needed)
	if err != nil {
		return err
	}

	n := copy(buf[cursor:], data)
	last.Size += uint32(n)
	data = data[n:]

	prev := last
	for k := 0; k < needed; k++ {
		header, dataBlock := blocks[2*k], blocks[2*k+1]
		if err := v.store.PutData(dataBlock); err != nil {
			return err
		}
		buf, err := v.store.Data(dataBlock)
		if err != nil {
			return err
		}
		n := copy(buf, data)
		data = data[n:]

		prev.Next = header
		if err := v.store.PutChunkHeader(prev.Index, prev.ChunkHeader); err != nil {
			return err
		}
		prev = ChunkEntry{
			Index: header,
			ChunkHeader: block.ChunkHeader{
				Size: uint32(n),
				Next: block.Nil,
				Data: dataBlock,
			},
		}
		file.Chunks++
	}
	if err := v.store.PutChunkHeader(prev.Index, prev.ChunkHeader); err != nil {
		return err
	}
	if err := v.store.PutFile(index, file); err != nil {
		return err
	}
	if needed > 0 {
		v.log.Debug("file grown", zap.String("name", file.Name), zap.Int("new_chunks", needed), zap.Uint32("chunks", file.Chunks))
	}
	return nil
}

// Size returns the number of content bytes in a file.
func (v *Volume) Size(index block.Index) (int64, error) {
	chain, err := v.Chunks(index)
	if err != nil {
		return 0, err
	}
	var size int64
	for _, chunk := range chain {
		size += int64(chunk.Size)
	}
	return size, nil
}

// Read returns the whole content of a file. Each chunk contributes the
// number of bytes its header records.
func (v *Volume) Read(index block.Index) ([]byte, error) {
	size, err := v.Size(index)
	if err != nil {
		return nil, err
	}
	chain, err := v.Chunks(index)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, size)
	for _, chunk := range chain {
		buf, err := v.store.Data(chunk.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, buf[:chunk.Size]...)
	}
	return out, nil
}
