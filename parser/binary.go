package parser

import (
	"reflect"
	"sort"
)

const placeholderKey = "_placeholder"

func isBinary(obj interface{}) bool {
	_, ok := obj.([]byte)
	return ok
}

// HasBinary reports whether obj embeds a []byte anywhere in its tree.
func HasBinary(obj interface{}) bool {
	switch v := obj.(type) {
	case []interface{}:
		for _, value := range v {
			if HasBinary(value) {
				return true
			}
		}
		return false
	case map[string]interface{}:
		for _, value := range v {
			if HasBinary(value) {
				return true
			}
		}
		return false
	default:
		if isBinary(obj) {
			return true
		}
		rv := reflect.ValueOf(obj)
		if !isContainer(rv) {
			return false
		}
		if rv.Kind() == reflect.Map {
			iter := rv.MapRange()
			for iter.Next() {
				if HasBinary(iter.Value().Interface()) {
					return true
				}
			}
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			if HasBinary(rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	}
}

// isContainer reports whether v is a typed slice, array or string-keyed map
// that may hold blobs, such as [][]byte or map[string][]byte.
func isContainer(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return v.Type().Elem().Kind() != reflect.Uint8
	case reflect.Map:
		return v.Type().Key().Kind() == reflect.String
	}
	return false
}

// generic copies a typed container into the []interface{} or
// map[string]interface{} form the placeholder walk understands.
func generic(v reflect.Value) interface{} {
	if v.Kind() == reflect.Map {
		m := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return m
	}
	s := make([]interface{}, v.Len())
	for i := range s {
		s[i] = v.Index(i).Interface()
	}
	return s
}

// deconstructPacket returns a copy of packet whose blobs are replaced by
// placeholders, together with the blobs in placeholder order.
func deconstructPacket(packet Packet) (Packet, [][]byte) {
	var buffers [][]byte
	packet.Data = _deconstructPacket(packet.Data, &buffers)
	packet.Attachments = len(buffers)
	return packet, buffers
}

func _deconstructPacket(data interface{}, buffers *[][]byte) interface{} {
	switch v := data.(type) {
	case []interface{}:
		newData := make([]interface{}, len(v))
		for i, value := range v {
			newData[i] = _deconstructPacket(value, buffers)
		}
		return newData
	case map[string]interface{}:
		// sorted so placeholder indices do not depend on map iteration order
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		newData := make(map[string]interface{}, len(v))
		for _, key := range keys {
			newData[key] = _deconstructPacket(v[key], buffers)
		}
		return newData
	case []byte:
		*buffers = append(*buffers, v)
		return map[string]interface{}{placeholderKey: true, "num": len(*buffers) - 1}
	default:
		if v := reflect.ValueOf(data); isContainer(v) && HasBinary(data) {
			return _deconstructPacket(generic(v), buffers)
		}
		return data
	}
}

func reconstructPacket(packet *Packet, buffers [][]byte) error {
	data, err := _reconstructPacket(packet.Data, buffers)
	if err != nil {
		return err
	}
	packet.Data = data
	packet.Attachments = -1
	return nil
}

func _reconstructPacket(data interface{}, buffers [][]byte) (interface{}, error) {
	switch v := data.(type) {
	case []interface{}:
		for i, value := range v {
			r, err := _reconstructPacket(value, buffers)
			if err != nil {
				return nil, err
			}
			v[i] = r
		}
	case map[string]interface{}:
		if placeholder, ok := v[placeholderKey].(bool); ok && placeholder {
			num, ok := placeholderIndex(v["num"])
			if !ok || num < 0 || num >= len(buffers) {
				return nil, ErrIllegalAttachments
			}
			return buffers[num], nil
		}
		for key, value := range v {
			r, err := _reconstructPacket(value, buffers)
			if err != nil {
				return nil, err
			}
			v[key] = r
		}
	}
	return data, nil
}

func placeholderIndex(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}
