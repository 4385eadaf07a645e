package generic

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("account:emp-1/offset_hours/perpetual")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, m.size(), "released keys are forgotten")
}

func TestKeyedMutex_OverlappingSetsDoNotDeadlock(t *testing.T) {
	m := NewKeyedMutex()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Lock("a", "b")()
		}()
		go func() {
			defer wg.Done()
			m.Lock("b", "a", "b")()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, m.size())
}
