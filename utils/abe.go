// utils/abe.go
//
// Session notes hold clinical content, so they are encrypted at rest with
// attribute-based encryption (FAME). The access policy is fixed: a note can
// be opened by the treating practitioner or by an auditor.
package utils

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log"
	"os"

	"github.com/fentec-project/gofe/abe"
)

var pubKey *abe.FAMEPubKey
var secKey *abe.FAMESecKey

const (
	pubKeyFile = "abe_public.key"
	secKeyFile = "abe_secret.key"

	// NotePolicy is the boolean access policy notes are encrypted under.
	NotePolicy = "practitioner OR auditor"
)

func init() {
	gob.Register(&abe.FAMECipher{})
	gob.Register(&abe.FAMEPubKey{})
	gob.Register(&abe.FAMESecKey{})
}

// InitABE loads the master keys from disk or generates a fresh pair.
func InitABE() {
	if loadABEKeys() {
		log.Println("ABE keys loaded from file")
		return
	}

	log.Println("Generating new ABE master keys...")
	scheme := abe.NewFAME()
	var err error
	pubKey, secKey, err = scheme.GenerateMasterKeys()
	if err != nil {
		log.Fatalf("Error generating ABE master keys: %v", err)
	}
	if err := saveABEKeys(); err != nil {
		log.Fatalf("Error saving ABE keys: %v", err)
	}
	log.Println("ABE keys generated and saved")
}

func saveABEKeys() error {
	if err := writeGobFile(pubKeyFile, pubKey); err != nil {
		return err
	}
	return writeGobFile(secKeyFile, secKey)
}

func loadABEKeys() bool {
	pub := &abe.FAMEPubKey{}
	sec := &abe.FAMESecKey{}
	if readGobFile(pubKeyFile, pub) != nil || readGobFile(secKeyFile, sec) != nil {
		return false
	}
	pubKey = pub
	secKey = sec
	return true
}

func writeGobFile(name string, data interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return err
	}
	return os.WriteFile(name, buf.Bytes(), 0600)
}

func readGobFile(name string, into interface{}) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	return gob.NewDecoder(bytes.NewBuffer(data)).Decode(into)
}

// EncryptNote encrypts a serialized note under NotePolicy and returns the
// gob-serialized cipher ready for the ciphertext column.
func EncryptNote(plaintext string) ([]byte, error) {
	scheme := abe.NewFAME()
	msp, err := abe.BooleanToMSP(NotePolicy, false)
	if err != nil {
		return nil, fmt.Errorf("building MSP: %v", err)
	}
	cipher, err := scheme.Encrypt(plaintext, msp, pubKey)
	if err != nil {
		return nil, fmt.Errorf("encrypting note: %v", err)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cipher); err != nil {
		return nil, fmt.Errorf("serializing cipher: %v", err)
	}
	return buf.Bytes(), nil
}

// DecryptNote decrypts a stored ciphertext for a caller holding the given
// attributes (e.g. ["practitioner"]).
func DecryptNote(data []byte, attributes []string) (string, error) {
	var cipher abe.FAMECipher
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&cipher); err != nil {
		return "", fmt.Errorf("deserializing cipher: %v", err)
	}
	scheme := abe.NewFAME()
	attribKeys, err := scheme.GenerateAttribKeys(attributes, secKey)
	if err != nil {
		return "", fmt.Errorf("generating attribute keys: %v", err)
	}
	text, err := scheme.Decrypt(&cipher, attribKeys, pubKey)
	if err != nil {
		return "", fmt.Errorf("decrypting note: %v", err)
	}
	return text, nil
}
