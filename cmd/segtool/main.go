// Command segtool inspects, merges, and queries on-disk index segments.
//
//	segtool inspect -dir data -base seg_000001
//	segtool merge   -dir data -in seg_000001,seg_000002 -bases 0,100 -out seg_000003
//	segtool lookup  -dir data -in seg_000001,seg_000002 -bases 0,100 -term hello
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/meridiansearch/fulltext-platform/internal/index/merger"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/internal/index/reader"
	"github.com/meridiansearch/fulltext-platform/internal/index/segment"
	"github.com/meridiansearch/fulltext-platform/internal/querycache"
	"github.com/meridiansearch/fulltext-platform/pkg/config"
	"github.com/meridiansearch/fulltext-platform/pkg/logger"
	"github.com/meridiansearch/fulltext-platform/pkg/redis"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	logger.Setup("warn", "text")
	var err error
	switch os.Args[1] {
	case "inspect":
		err = runInspect(os.Args[2:])
	case "merge":
		err = runMerge(os.Args[2:])
	case "lookup":
		err = runLookup(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "segtool %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: segtool <inspect|merge|lookup> [flags]")
	os.Exit(2)
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dir := fs.String("dir", ".", "segment directory")
	base := fs.String("base", "", "segment base name")
	fs.Parse(args)
	if *base == "" {
		return fmt.Errorf("-base is required")
	}
	// Flag is unknown up front: read the header through a reader opened
	// with whatever the file declares.
	r, err := openAnyFlag(*dir, *base)
	if err != nil {
		return err
	}
	defer r.Close()
	fmt.Printf("segment   %s\n", *base)
	fmt.Printf("flag      %#x\n", r.Flag())
	fmt.Printf("terms     %d\n", r.TermCount())
	fmt.Printf("docs      %d\n", r.DocCount())
	it, err := r.Terms()
	if err != nil {
		return err
	}
	var totalTF uint64
	for {
		ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		totalTF += it.Meta().TotalTF
	}
	fmt.Printf("total_tf  %d\n", totalTF)
	return nil
}

func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	dir := fs.String("dir", ".", "segment directory")
	in := fs.String("in", "", "comma-separated input base names")
	basesArg := fs.String("bases", "", "comma-separated base docids")
	out := fs.String("out", "", "output base name")
	fs.Parse(args)
	names, bases, err := parseSegmentSet(*in, *basesArg)
	if err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("-out is required")
	}
	first, err := openAnyFlag(*dir, names[0])
	if err != nil {
		return err
	}
	flagVal := first.Flag()
	first.Close()
	m := merger.New(*dir, flagVal, pool.DefaultChunkSize, nil)
	if err := m.Merge(names, bases, *out); err != nil {
		return err
	}
	fmt.Printf("merged %d segments into %s\n", len(names), *out)
	return nil
}

func runLookup(args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	dir := fs.String("dir", ".", "segment directory")
	in := fs.String("in", "", "comma-separated base names")
	basesArg := fs.String("bases", "", "comma-separated base docids")
	term := fs.String("term", "", "term to look up")
	redisAddr := fs.String("redis", "", "optional redis address for the posting cache")
	fs.Parse(args)
	names, bases, err := parseSegmentSet(*in, *basesArg)
	if err != nil {
		return err
	}
	if *term == "" {
		return fmt.Errorf("-term is required")
	}
	first, err := openAnyFlag(*dir, names[0])
	if err != nil {
		return err
	}
	flagVal := first.Flag()
	first.Close()

	r, err := reader.Open(*dir, names, bases, flagVal)
	if err != nil {
		return err
	}
	defer r.Close()
	sessionPool := pool.New(pool.DefaultChunkSize)
	defer sessionPool.Release()

	var it *reader.PostingIterator
	if *redisAddr != "" {
		redisCfg := config.RedisConfig{Addr: *redisAddr, PoolSize: 4, CacheTTL: 5 * time.Minute}
		client, err := redis.NewClient(redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()
		cache := querycache.New(client, redisCfg, nil)
		postings, err := cache.Lookup(context.Background(), r, *term, sessionPool)
		if err != nil {
			return err
		}
		it, err = reader.NewPostingIterator(flagVal, postings, sessionPool)
		if err != nil {
			return err
		}
	} else {
		it, err = r.Lookup(*term, sessionPool)
		if err != nil {
			return err
		}
	}
	if it == nil {
		fmt.Printf("term %q not found\n", *term)
		return nil
	}
	doc, ok, err := it.SeekDoc(0)
	for err == nil && ok {
		fmt.Printf("doc %d tf %d positions", doc, it.CurrentTF())
		for {
			p, more, perr := it.NextPosition()
			if perr != nil {
				return perr
			}
			if !more {
				break
			}
			fmt.Printf(" %d", p)
		}
		fmt.Println()
		doc, ok, err = it.SeekDoc(doc + 1)
	}
	return err
}

func parseSegmentSet(in, basesArg string) ([]string, []uint32, error) {
	if in == "" || basesArg == "" {
		return nil, nil, fmt.Errorf("-in and -bases are required")
	}
	names := strings.Split(in, ",")
	baseStrs := strings.Split(basesArg, ",")
	if len(names) != len(baseStrs) {
		return nil, nil, fmt.Errorf("%d names for %d bases", len(names), len(baseStrs))
	}
	bases := make([]uint32, len(baseStrs))
	for i, s := range baseStrs {
		v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing base %q: %w", s, err)
		}
		bases[i] = uint32(v)
	}
	return names, bases, nil
}

// openAnyFlag opens a segment under whatever option flag it declares.
func openAnyFlag(dir, base string) (*segment.Reader, error) {
	flagVal, err := segment.ReadFlag(dir, base)
	if err != nil {
		return nil, err
	}
	return segment.OpenReader(dir, base, flagVal)
}
