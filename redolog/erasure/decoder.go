// The decoder reverses the process done by "encoder.go"
package erasure

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"fmt"
	log "log/slog"
)

// DecodeResult is a structure containing the Decode function result.
type DecodeResult struct {
	DecodedData []byte
	// ReconstructedShardsIndeces holds the shard(s) indices that were nil or corrupted and had
	// to be reconstructed, so the caller can fix them up on the underlying sink.
	ReconstructedShardsIndeces []int
	Error                      error
}

// Decode reverses the erasure encode done on shards, returning the data together with the
// indices of any shards that had to be reconstructed, or an error.
func (e *Erasure) Decode(shards [][]byte, shardsMetaData [][]byte) *DecodeResult {
	if len(shards) == 0 {
		return &DecodeResult{Error: fmt.Errorf("shards can't be nil or empty")}
	}

	r := &DecodeResult{}
	ok, _ := e.encoder.Verify(shards)
	if !ok {
		log.Info("redo log shard verification failed, reconstructing")
		r = e.reconstructMissingShards(shards)
		if r.Error != nil {
			return r
		}
		ok, _ = e.encoder.Verify(shards)
		if !ok {
			dr := e.detectBadShardsThenReconstruct(shards, shardsMetaData)
			if dr.Error != nil {
				return &DecodeResult{Error: fmt.Errorf("final attempt to reconstruct failed, error: %v", dr.Error)}
			}
			r = dr
		}
	}

	var b bytes.Buffer
	w := bufio.NewWriter(&b)
	if err := e.encoder.Join(w, shards, len(shards[0])*e.DataShardsCount); err != nil {
		return &DecodeResult{Error: fmt.Errorf("encoder.Join failed, error: %v", err)}
	}
	w.Flush()
	ba := make([]byte, len(b.Bytes())-int(shardsMetaData[0][0]))
	copy(ba, b.Bytes())
	r.DecodedData = ba
	return r
}

func (e *Erasure) detectBadShardsThenReconstruct(shards [][]byte, shardsMetaData [][]byte) *DecodeResult {
	corruptedShardsIndices := make([]int, 0, 2)
	for i := range shards {
		expectedChecksum := shardsMetaData[i][1:]
		gotChecksum := md5.Sum(shards[i])
		if !bytes.Equal(expectedChecksum, gotChecksum[:]) {
			corruptedShardsIndices = append(corruptedShardsIndices, i)
			shards[i] = nil
		}
	}
	if len(corruptedShardsIndices) == 0 {
		return &DecodeResult{Error: fmt.Errorf("shards passed checksum check, should be good")}
	}
	if err := e.encoder.Reconstruct(shards); err != nil {
		return &DecodeResult{Error: err}
	}
	ok, err := e.encoder.Verify(shards)
	if !ok {
		return &DecodeResult{Error: err}
	}
	return &DecodeResult{ReconstructedShardsIndeces: corruptedShardsIndices}
}

func (e *Erasure) reconstructMissingShards(shards [][]byte) *DecodeResult {
	r := DecodeResult{}
	requestReconstruction := make([]bool, len(shards))
	for i := range shards {
		if shards[i] == nil {
			r.ReconstructedShardsIndeces = append(r.ReconstructedShardsIndeces, i)
			requestReconstruction[i] = true
		}
	}
	if err := e.encoder.ReconstructSome(shards, requestReconstruction); err != nil {
		r.Error = err
	}
	return &r
}
