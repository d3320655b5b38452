package main

import (
	"fmt"

	"github.com/heimdallr-go/heimdallr/client"
)

// runPingPong implements spec.md §8 scenario 1: rank 0 sends a 4-byte
// buffer to rank 1 tagged 0; rank 1 receives it and sends it back tagged
// 1; rank 0 must observe the identical buffer.
func runPingPong(c *client.Client) error {
	if c.Size != 2 {
		return fmt.Errorf("pingpong requires exactly 2 ranks, got %d", c.Size)
	}

	const tagOut, tagBack uint32 = 0, 1
	buf := [4]byte{'A', 'A', 'A', 'A'}

	switch c.ID {
	case 0:
		if err := client.Send(c, buf, 1, tagOut); err != nil {
			return fmt.Errorf("send to rank 1: %w", err)
		}
		got, err := client.Receive[[4]byte](c, 1, tagBack)
		if err != nil {
			return fmt.Errorf("receive from rank 1: %w", err)
		}
		if got != buf {
			return fmt.Errorf("ping-pong mismatch: sent %v, got back %v", buf, got)
		}
		fmt.Printf("rank 0: ping-pong succeeded, observed %v\n", got)
	case 1:
		got, err := client.Receive[[4]byte](c, 0, tagOut)
		if err != nil {
			return fmt.Errorf("receive from rank 0: %w", err)
		}
		if err := client.Send(c, got, 0, tagBack); err != nil {
			return fmt.Errorf("send back to rank 0: %w", err)
		}
	}
	return nil
}

// runGather implements spec.md §8 scenario 2: ranks 1, 2, 3 each send a
// u64 (their own rank number) twice under tag 0; rank 0 performs six
// receives in two explicit orders and prints each pass as a comma
// separated list.
func runGather(c *client.Client) error {
	if c.Size != 4 {
		return fmt.Errorf("gather requires exactly 4 ranks, got %d", c.Size)
	}
	const tag uint32 = 0

	if c.ID != 0 {
		value := uint64(c.ID)
		if err := client.Send(c, value, 0, tag); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		if err := client.Send(c, value, 0, tag); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	first, err := gatherPass(c, tag, []uint32{1, 2, 3})
	if err != nil {
		return err
	}
	fmt.Println(joinUint64(first))

	second, err := gatherPass(c, tag, []uint32{3, 2, 1})
	if err != nil {
		return err
	}
	fmt.Println(joinUint64(second))
	return nil
}

func gatherPass(c *client.Client, tag uint32, order []uint32) ([]uint64, error) {
	out := make([]uint64, 0, len(order))
	for _, source := range order {
		v, err := client.Receive[uint64](c, source, tag)
		if err != nil {
			return nil, fmt.Errorf("receive from rank %d: %w", source, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func joinUint64(vs []uint64) string {
	s := ""
	for i, v := range vs {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", v)
	}
	return s
}

// runMutexCounter implements spec.md §8 scenario 3: every rank increments
// a shared u64 mutex 25,000 times under lock; after a final barrier, every
// rank reads the mutex once more and must observe 25_000 * N.
func runMutexCounter(c *client.Client) error {
	const iterations = 25000

	m, err := client.CreateMutex[uint64](c, "counter", 0)
	if err != nil {
		return fmt.Errorf("create mutex: %w", err)
	}

	for i := 0; i < iterations; i++ {
		h, err := m.Lock()
		if err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		h.Value++
		if err := h.Unlock(); err != nil {
			return fmt.Errorf("unlock: %w", err)
		}
	}

	if err := c.Barrier(); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}

	h, err := m.Lock()
	if err != nil {
		return fmt.Errorf("final lock: %w", err)
	}
	final := h.Value
	if err := h.Unlock(); err != nil {
		return fmt.Errorf("final unlock: %w", err)
	}

	want := uint64(iterations) * uint64(c.Size)
	if final != want {
		return fmt.Errorf("mutex counter mismatch: got %d, want %d", final, want)
	}
	fmt.Printf("rank %d: mutex counter converged to %d\n", c.ID, final)
	return nil
}

// runAnySource implements spec.md §8 scenario 4: each non-zero rank sends
// a message to rank 0 tagged with its own rank; rank 0 issues
// receive_any_source once per non-zero rank, relying on tag (not sender)
// to route the right message.
func runAnySource(c *client.Client) error {
	if c.Size < 3 {
		return fmt.Errorf("anysource requires at least 3 ranks, got %d", c.Size)
	}

	if c.ID != 0 {
		msg := fmt.Sprintf("Message from process %d", c.ID)
		if err := client.Send(c, msg, 0, c.ID); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	for k := uint32(1); k < c.Size; k++ {
		source, msg, err := client.ReceiveAnySource[string](c, k)
		if err != nil {
			return fmt.Errorf("receive_any_source tag %d: %w", k, err)
		}
		fmt.Printf("rank 0: received %q from rank %d (tag %d)\n", msg, source, k)
	}
	return nil
}
