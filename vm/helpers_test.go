package vm

import (
	"errors"
	"fmt"
	"sync"
)

type testFun struct {
	name   string
	arity  uint32
	offset uint32
	export bool
}

func exported(name string, arity, offset uint32) testFun {
	return testFun{name: name, arity: arity, offset: offset, export: true}
}

func local(name string, arity, offset uint32) testFun {
	return testFun{name: name, arity: arity, offset: offset}
}

// testImage builds a 64-instruction image with the given functions.
func testImage(at *AtomTable, name string, funs ...testFun) *Image {
	img := &Image{
		Name:         at.Intern(name),
		Funs:         make(map[FunKey]uint32),
		Instructions: make([]Instruction, 64),
	}
	for _, f := range funs {
		fn := at.Intern(f.name)
		img.Funs[FunKey{Function: fn, Arity: f.arity}] = f.offset
		if f.export {
			img.Exports = append(img.Exports, Export{Function: fn, Arity: f.arity, Label: uint32(len(img.Exports))})
		}
	}
	return img
}

func mfa(at *AtomTable, mod, fn string, arity uint32) MFA {
	return MFA{Module: at.Intern(mod), Function: at.Intern(fn), Arity: arity}
}

// mapDecoder serves images from memory keyed by path.
type mapDecoder struct {
	images map[string]*Image
}

func (d mapDecoder) Decode(path string) (*Image, error) {
	img, ok := d.images[path]
	if !ok {
		return nil, fmt.Errorf("%w: open %s: no such file", ErrIO, path)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: bad chunk header", ErrDecode)
	}
	return img, nil
}

var errHookFailed = errors.New("init returned error")

// stopOnFirstCheck stops its machine the first time an override is
// consulted, which happens in the middle of export publication.
type stopOnFirstCheck struct {
	m    *Machine
	once sync.Once
}

func (s *stopOnFirstCheck) IsOverride(MFA) bool {
	s.once.Do(s.m.Stop)
	return false
}
