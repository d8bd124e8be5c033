package main

import (
	"bytes"
	"fmt"
	"log"

	"github.com/infinivision/blockkv/kv"
)

func main() {
	cfg := kv.DefaultConfig()
	cfg.Path = "test.img"
	db, err := kv.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	{
		for i := 0; i < 100; i++ {
			if err := db.Put([]byte(fmt.Sprintf("/u/b/u_%v", i)), []byte(fmt.Sprintf("%v", i))); err != nil {
				log.Fatal(err)
			}
		}
	}
	{
		for i := 0; i < 100; i++ {
			if v, err := db.Get([]byte(fmt.Sprintf("/u/b/u_%v", i))); err != nil {
				log.Fatal(err)
			} else {
				if bytes.Compare(v, []byte(fmt.Sprintf("%v", i))) != 0 {
					log.Fatal(fmt.Errorf("%s is not %v - %v\n", fmt.Sprintf("/u/b/u_%v", i), fmt.Sprintf("%v", i), v))
				}
			}
		}
	}
	{
		for i := 0; i < 50; i++ {
			if err := db.Remove([]byte(fmt.Sprintf("/u/b/u_%v", i))); err != nil {
				log.Fatal(err)
			}
		}
		if db.Size() != 50 {
			log.Fatal(fmt.Errorf("size is %v, not 50", db.Size()))
		}
	}
	{
		for _, k := range db.List() {
			fmt.Printf("%s\n", string(k))
		}
	}
}
