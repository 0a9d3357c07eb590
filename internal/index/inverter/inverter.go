// Package inverter turns tokenized document batches into sorted term and
// position tables, then commits them either into the in-memory indexer or
// onto a spill file for external merge sort.
//
// Terms live in a packed byte table; a term is referred to by a termRef, the
// byte offset of its text divided by four. The four bytes preceding the text
// are scratch for the dense term number assigned during SortTerms, so the
// number can be read back with no side table. Ref 0 is a sentinel: the first
// table entry starts at offset 4.
package inverter

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/meridiansearch/fulltext-platform/internal/analysis"
	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/indexer"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/pkg/errors"
)

// PosInfo records one term occurrence. During inversion TermNum temporarily
// holds a termRef; SortTerms rewrites it to the dense term number.
type PosInfo struct {
	TermNum uint32
	DocID   uint32
	TermPos uint32
}

// invalidPos marks "no position seen yet" for the duplicate-elision pass.
const invalidPos = ^uint32(0)

type state int

const (
	stateBuilding state = iota
	stateSorted
	stateCommitted
)

type docTokens struct {
	docID  uint32
	tokens []analysis.Token
}

// Inverter accumulates one shard's term occurrences between commits. It is
// single-writer; shard inverters run on their own goroutines and are folded
// into a primary via Merge before the primary sorts and commits.
type Inverter struct {
	indexer  *indexer.MemoryIndexer
	analyzer analysis.Analyzer
	p        *pool.Pool

	terms       []byte    // packed term table
	termRefs    []uint32  // [0] is the sentinel
	positions   []PosInfo // one record per occurrence
	termsPerDoc []docTokens

	st state
}

// New creates an inverter bound to the given indexer, with its own memory
// pool of the given chunk size.
func New(mi *indexer.MemoryIndexer, poolChunkSize int) *Inverter {
	return &Inverter{
		indexer:  mi,
		analyzer: mi.GetAnalyzer(),
		p:        pool.New(poolChunkSize),
	}
}

// InvertColumn tokenizes rowCount rows starting at rowOffset, assigning
// docids sequentially from startDocID. Tokens are staged per document; no
// deduplication happens until Sort.
func (inv *Inverter) InvertColumn(rows []string, rowOffset, rowCount, startDocID uint32) {
	for i := uint32(0); i < rowCount; i++ {
		inv.invertDoc(startDocID+i, rows[rowOffset+i])
	}
}

func (inv *Inverter) invertDoc(docID uint32, text string) {
	tokens := inv.analyzer.Analyze(text)
	inv.termsPerDoc = append(inv.termsPerDoc, docTokens{docID: docID, tokens: tokens})
}

// AddTerm appends a term to the packed table: 4 scratch bytes, the term
// text, a NUL, then padding to a 4-byte boundary. It returns the term's ref.
func (inv *Inverter) AddTerm(term []byte) uint32 {
	termsSize := len(inv.terms)
	unpadded := termsSize + 4 + len(term) + 1
	padded := (unpadded + 3) &^ 3
	inv.terms = pool.GrowSlice(inv.p, inv.terms, padded)
	inv.terms = inv.terms[:padded]
	buf := inv.terms[termsSize:]
	for i := 0; i < 4; i++ {
		buf[i] = 0
	}
	copy(buf[4:], term)
	for i := 4 + len(term); i < len(buf); i++ {
		buf[i] = 0
	}
	ref := uint32(termsSize+4) >> 2

	if len(inv.termRefs) == 0 {
		inv.termRefs = pool.GrowSlice(inv.p, inv.termRefs, 2)
		inv.termRefs = append(inv.termRefs, 0) // sentinel
	}
	inv.termRefs = pool.GrowSlice(inv.p, inv.termRefs, len(inv.termRefs)+1)
	inv.termRefs = append(inv.termRefs, ref)
	return ref
}

// termAtRef returns the term text for ref, up to its NUL terminator.
func (inv *Inverter) termAtRef(ref uint32) []byte {
	off := int(ref) << 2
	end := bytes.IndexByte(inv.terms[off:], 0)
	return inv.terms[off : off+end]
}

// termNumAtRef reads the dense term number from the scratch bytes preceding
// the term text.
func (inv *Inverter) termNumAtRef(ref uint32) uint32 {
	return binary.LittleEndian.Uint32(inv.terms[(int(ref)<<2)-4:])
}

func (inv *Inverter) setTermNum(ref, termNum uint32) {
	binary.LittleEndian.PutUint32(inv.terms[(int(ref)<<2)-4:], termNum)
}

// termFromNum returns the representative term text for a dense term number.
// Valid only after SortTerms.
func (inv *Inverter) termFromNum(termNum uint32) []byte {
	return inv.termAtRef(inv.termRefs[termNum])
}

// drain moves staged per-document tokens into the position table, assigning
// term refs as it goes.
func (inv *Inverter) drain(docs []docTokens) {
	for _, dt := range docs {
		for _, tok := range dt.tokens {
			ref := inv.AddTerm([]byte(tok.Term))
			inv.positions = pool.GrowSlice(inv.p, inv.positions, len(inv.positions)+1)
			inv.positions = append(inv.positions, PosInfo{
				TermNum: ref,
				DocID:   dt.docID,
				TermPos: uint32(tok.Position),
			})
		}
	}
}

// Merge folds rhs's staged documents into this inverter. On the first merge
// the inverter lazily drains its own staging first, so positions from self
// precede those of merged shards. rhs keeps only its pools afterwards; it
// must not be used again except to Reset.
func (inv *Inverter) Merge(rhs *Inverter) {
	if len(inv.positions) == 0 {
		inv.drain(inv.termsPerDoc)
		inv.termsPerDoc = inv.termsPerDoc[:0]
	}
	inv.drain(rhs.termsPerDoc)
	rhs.termsPerDoc = rhs.termsPerDoc[:0]
}

// SortTerms orders termRefs[1..] lexicographically, assigns dense term
// numbers starting at 1, deduplicates the ref table in place, and rewrites
// every position's termRef into its term number.
//
// The sort packs each term's big-endian 4-byte prefix above its ref into one
// 64-bit key, radix-sorts on the prefix, and falls back to a full term
// comparison only inside equal-prefix groups.
func (inv *Inverter) SortTerms() {
	n := len(inv.termRefs)
	if n <= 1 {
		return
	}
	keys := pool.Slice[uint64](inv.p, n)
	scratch := pool.Slice[uint64](inv.p, n-1)
	for i := 1; i < n; i++ {
		ref := inv.termRefs[i]
		prefix := uint64(binary.BigEndian.Uint32(inv.terms[int(ref)<<2:]))
		keys[i] = prefix<<32 | uint64(ref)
	}
	sortTermKeys(keys[1:], scratch, func(a, b uint64) int {
		return bytes.Compare(inv.termAtRef(uint32(a)), inv.termAtRef(uint32(b)))
	})
	for i := 1; i < n; i++ {
		inv.termRefs[i] = uint32(keys[i])
	}

	termNum := uint32(1)
	last := inv.termAtRef(inv.termRefs[1])
	inv.setTermNum(inv.termRefs[1], termNum)
	for i := 2; i < n; i++ {
		ref := inv.termRefs[i]
		term := inv.termAtRef(ref)
		if bytes.Compare(last, term) < 0 {
			termNum++
			inv.termRefs[termNum] = ref
			last = term
		}
		inv.setTermNum(ref, termNum)
	}
	inv.termRefs = inv.termRefs[:termNum+1]

	// Replace the staged term refs by term numbers.
	for i := range inv.positions {
		inv.positions[i].TermNum = inv.termNumAtRef(inv.positions[i].TermNum)
	}
}

// Sort drains any staged documents, orders the terms, then radix-sorts the
// position table by the packed (termNum, docID) key.
func (inv *Inverter) Sort() {
	if len(inv.termsPerDoc) > 0 {
		inv.drain(inv.termsPerDoc)
		inv.termsPerDoc = inv.termsPerDoc[:0]
	}
	inv.SortTerms()
	if len(inv.positions) > 1 {
		scratch := pool.Slice[PosInfo](inv.p, len(inv.positions))
		sortPositions(inv.positions, scratch)
	}
	inv.st = stateSorted
}

// GeneratePosting commits the sorted positions into the indexer: one
// EndDocument per (term, doc) transition, one AddPosition per distinct
// position within a document.
func (inv *Inverter) GeneratePosting() {
	var lastTermNum uint32
	lastTermPos := invalidPos
	lastDocID := codec.InvalidDocID
	var posting *indexer.PostingWriter
	for _, pi := range inv.positions {
		if lastTermNum != pi.TermNum || lastDocID != pi.DocID {
			if lastTermNum != pi.TermNum {
				lastTermNum = pi.TermNum
				posting = inv.indexer.GetOrAddPosting(string(inv.termFromNum(lastTermNum)))
			}
			lastDocID = pi.DocID
			lastTermPos = invalidPos
			if lastDocID != codec.InvalidDocID {
				posting.EndDocument(lastDocID, 0)
			}
		}
		if pi.TermPos != lastTermPos {
			lastTermPos = pi.TermPos
			posting.AddPosition(lastTermPos)
		}
	}
}

// CommitTarget selects where a sorted batch lands: the in-memory indexer or
// a spill file run.
type CommitTarget struct {
	spill  SpillFile
	tuples *uint64
}

// InMemory commits into the inverter's indexer.
func InMemory() CommitTarget {
	return CommitTarget{}
}

// Spill appends a sorted run to f and adds the run's record count to
// *tuples.
func Spill(f SpillFile, tuples *uint64) CommitTarget {
	return CommitTarget{spill: f, tuples: tuples}
}

// Commit finishes the batch against the given target. The inverter must be
// sorted; afterwards it is committed and only Reset may follow.
func (inv *Inverter) Commit(target CommitTarget) error {
	if inv.st != stateSorted {
		return fmt.Errorf("commit in state %d: %w", inv.st, errors.ErrInvalidState)
	}
	if target.spill != nil {
		if err := inv.SpillSortResults(target.spill, target.tuples); err != nil {
			return err
		}
	} else {
		inv.GeneratePosting()
	}
	inv.st = stateCommitted
	return nil
}

// PositionCount returns the number of staged occurrence records.
func (inv *Inverter) PositionCount() int { return len(inv.positions) }

// Reset rewinds the inverter's pool and clears all state so the inverter can
// take the next batch. The indexer's postings are untouched; they live in
// the indexer's own pool.
func (inv *Inverter) Reset() {
	inv.terms = nil
	inv.termRefs = nil
	inv.positions = nil
	inv.termsPerDoc = inv.termsPerDoc[:0]
	inv.st = stateBuilding
	inv.p.Reset()
}

// Release drops the inverter's pool chunks entirely.
func (inv *Inverter) Release() {
	inv.terms = nil
	inv.termRefs = nil
	inv.positions = nil
	inv.termsPerDoc = nil
	inv.st = stateBuilding
	inv.p.Release()
}
