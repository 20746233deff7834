package repo

import "hash/fnv"

// shardCount is the number of lock shards in each in-memory store. Keys hash
// to a shard so operations on different users never contend on one mutex.
const shardCount = 32

func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
